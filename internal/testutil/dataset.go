package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/tilestackgo/internal/raster"
)

// Dataset lays out raster fixtures the way the retrieval step leaves them:
// <Dir>/<band>/<id>.<Ext>.
type Dataset struct {
	Dir string
	Ext string
}

// NewDataset creates an empty dataset directory that is removed with the test.
func NewDataset(t testing.TB) *Dataset {
	t.Helper()
	return &Dataset{Dir: t.TempDir(), Ext: "tiff"}
}

// Path returns where the raster for band and id lives.
func (d *Dataset) Path(band, id string) string {
	return filepath.Join(d.Dir, band, id+"."+d.Ext)
}

// WriteRaster encodes g as a TIFF for band and id and returns its path.
func (d *Dataset) WriteRaster(t testing.TB, band, id string, g raster.Grid[uint16], bits int, nodata string) string {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, EncodeGeoTIFF(&buf, g, bits, nodata))

	path := d.Path(band, id)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// WriteFile stores raw bytes for band and id, e.g. to simulate corruption.
func (d *Dataset) WriteFile(t testing.TB, band, id string, data []byte) string {
	t.Helper()

	path := d.Path(band, id)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// Ramp returns a width x height grid whose pixels count up from start in
// row-major order, handy for spotting misplaced samples.
func Ramp(width, height int, start uint16) raster.Grid[uint16] {
	g := raster.New[uint16](width, height)
	for i := range g.Pix {
		g.Pix[i] = start + uint16(i)
	}
	return g
}
