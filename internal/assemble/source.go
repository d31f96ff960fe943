package assemble

import (
	"path/filepath"

	"github.com/specialistvlad/tilestackgo/internal/failure"
	"github.com/specialistvlad/tilestackgo/internal/raster"
)

// Source yields the native raster of one band of one acquisition.
type Source interface {
	Read(band, id string) (*raster.Band, error)
}

// FileSource reads rasters laid out as <Dir>/<band>/<id>.<Ext>, the layout
// the retrieval step produces.
type FileSource struct {
	Dir string
	Ext string
}

// Path returns the file backing band of acquisition id.
func (s FileSource) Path(band, id string) string {
	return filepath.Join(s.Dir, band, id+"."+s.Ext)
}

// Read decodes the raster. Missing or corrupt files are DataErrors.
func (s FileSource) Read(band, id string) (*raster.Band, error) {
	b, err := raster.Open(s.Path(band, id))
	if err != nil {
		return nil, failure.Data(id, band, err)
	}
	return b, nil
}
