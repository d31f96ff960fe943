package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/edsrzf/mmap-go"
	gtiff "github.com/google/tiff"
	xtiff "golang.org/x/image/tiff"

	"github.com/specialistvlad/tilestackgo/internal/failure"
)

// tagGDALNoData is the private GDAL tag holding the no-data value as ASCII.
const tagGDALNoData = 42113

var (
	// ErrEmptyFile is returned for zero-length raster files.
	ErrEmptyFile = errors.New("empty raster file")

	// ErrNoData is returned when the no-data tag exists but cannot be used as a
	// 16-bit sentinel.
	ErrNoData = errors.New("unreadable no-data sentinel")
)

// readAtSeeker is what both TIFF readers need from the mapped file.
type readAtSeeker interface {
	io.ReaderAt
	io.ReadSeeker
}

// Open memory-maps the raster at path and decodes its first image. Every
// failure is returned as a *failure.DataError.
func Open(path string) (*Band, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, failure.Data("", "", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, failure.Data("", "", err)
	}
	if info.Size() == 0 {
		return nil, failure.Data("", "", fmt.Errorf("%s: %w", path, ErrEmptyFile))
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, failure.Data("", "", fmt.Errorf("mmap %s: %w", path, err))
	}
	defer m.Unmap()

	band, err := Decode(bytes.NewReader(m))
	if err != nil {
		return nil, failure.Data("", "", fmt.Errorf("%s: %w", path, err))
	}
	return band, nil
}

// Decode reads a single-band 8- or 16-bit grayscale TIFF. The pixels are copied
// out of r, so r may be released once Decode returns.
func Decode(r readAtSeeker) (*Band, error) {
	nodata, ok, err := readNoData(r)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	img, err := xtiff.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode tiff: %w", err)
	}
	grid, err := toGrid(img)
	if err != nil {
		return nil, err
	}
	return &Band{Grid: grid, NoData: nodata, HasNoData: ok}, nil
}

// readNoData looks for the GDAL no-data tag in the first IFD.
func readNoData(r readAtSeeker) (uint16, bool, error) {
	t, err := gtiff.Parse(r, nil, nil)
	if err != nil {
		return 0, false, fmt.Errorf("parse tiff header: %w", err)
	}
	ifds := t.IFDs()
	if len(ifds) == 0 {
		return 0, false, errors.New("tiff has no image directory")
	}
	ifd := ifds[0]
	if !ifd.HasField(tagGDALNoData) {
		return 0, false, nil
	}

	raw := string(ifd.GetField(tagGDALNoData).Value().Bytes())
	raw = strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %q", ErrNoData, raw)
	}
	if v < 0 || v > math.MaxUint16 || v != math.Trunc(v) {
		return 0, false, fmt.Errorf("%w: %q out of uint16 range", ErrNoData, raw)
	}
	return uint16(v), true, nil
}

func toGrid(img image.Image) (Grid[uint16], error) {
	b := img.Bounds()
	g := New[uint16](b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.Gray16:
		for y := 0; y < g.Height; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+2*g.Width]
			for x := 0; x < g.Width; x++ {
				g.Pix[y*g.Width+x] = uint16(row[2*x])<<8 | uint16(row[2*x+1])
			}
		}
	case *image.Gray:
		for y := 0; y < g.Height; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+g.Width]
			for x, v := range row {
				g.Pix[y*g.Width+x] = uint16(v)
			}
		}
	default:
		return Grid[uint16]{}, fmt.Errorf("unsupported pixel layout %T, want single-band gray", img)
	}
	return g, nil
}
