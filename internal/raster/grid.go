// Package raster holds the dense 2-D grid type shared by every pipeline stage
// and the GeoTIFF decoder that produces it.
package raster

import "fmt"

// Pixel is the set of element types a Grid may hold: reflectance and class
// values are unsigned integers, masks are booleans.
type Pixel interface {
	~uint8 | ~uint16 | ~bool
}

// Grid is a row-major raster. Pix has exactly Width*Height elements.
type Grid[T Pixel] struct {
	Width  int
	Height int
	Pix    []T
}

// New allocates a zeroed grid.
func New[T Pixel](width, height int) Grid[T] {
	if width < 0 || height < 0 {
		panic(fmt.Sprintf("raster: negative grid size %dx%d", width, height))
	}
	return Grid[T]{Width: width, Height: height, Pix: make([]T, width*height)}
}

// Filled allocates a grid with every pixel set to v.
func Filled[T Pixel](width, height int, v T) Grid[T] {
	g := New[T](width, height)
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

// At returns the pixel at column x, row y.
func (g Grid[T]) At(x, y int) T {
	return g.Pix[y*g.Width+x]
}

// Set stores v at column x, row y.
func (g Grid[T]) Set(x, y int, v T) {
	g.Pix[y*g.Width+x] = v
}

// Clone returns a deep copy.
func (g Grid[T]) Clone() Grid[T] {
	out := Grid[T]{Width: g.Width, Height: g.Height, Pix: make([]T, len(g.Pix))}
	copy(out.Pix, g.Pix)
	return out
}

// Size formats the grid dimensions as WxH.
func (g Grid[T]) Size() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}

// SameShape reports whether two grids, of any element type, cover the same
// number of rows and columns.
func SameShape[A, B Pixel](a Grid[A], b Grid[B]) bool {
	return a.Width == b.Width && a.Height == b.Height
}

// Band is a decoded single-band raster together with the no-data sentinel
// declared in the file, if any.
type Band struct {
	Grid[uint16]
	NoData    uint16
	HasNoData bool
}

// Sentinel returns the no-data value to use for this band: the one declared in
// the file, else fallback. ok is false when neither is available.
func (b *Band) Sentinel(fallback *uint16) (v uint16, ok bool) {
	if b.HasNoData {
		return b.NoData, true
	}
	if fallback != nil {
		return *fallback, true
	}
	return 0, false
}
