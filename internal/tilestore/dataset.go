package tilestore

import (
	"fmt"

	"github.com/specialistvlad/tilestackgo/internal/raster"
)

// Dataset holds the three aligned arrays of one tile. Bands is laid out
// [N, H, W, B] and Masks [N, H, W], both in C order.
type Dataset struct {
	N, H, W, B int

	Bands []uint16
	Masks []uint8
	DOYs  []uint16
}

// NewDataset allocates a zeroed dataset for n acquisitions of b bands on an
// h x w grid.
func NewDataset(n, h, w, b int) *Dataset {
	return &Dataset{
		N: n, H: h, W: w, B: b,
		Bands: make([]uint16, n*h*w*b),
		Masks: make([]uint8, n*h*w),
		DOYs:  make([]uint16, n),
	}
}

// SetRow fills acquisition i. bands must hold B grids of H x W in output band
// order; mask must be H x W.
func (d *Dataset) SetRow(i int, bands []raster.Grid[uint16], mask raster.Grid[uint8], doy uint16) error {
	if i < 0 || i >= d.N {
		return fmt.Errorf("row %d out of range [0, %d)", i, d.N)
	}
	if len(bands) != d.B {
		return fmt.Errorf("row %d: got %d bands, want %d", i, len(bands), d.B)
	}
	if mask.Width != d.W || mask.Height != d.H {
		return fmt.Errorf("row %d: mask is %s, want %dx%d", i, mask.Size(), d.W, d.H)
	}
	for b, g := range bands {
		if g.Width != d.W || g.Height != d.H {
			return fmt.Errorf("row %d: band #%d is %s, want %dx%d", i, b, g.Size(), d.W, d.H)
		}
	}

	plane := d.H * d.W
	base := i * plane * d.B
	for p := 0; p < plane; p++ {
		px := d.Bands[base+p*d.B : base+(p+1)*d.B]
		for b, g := range bands {
			px[b] = g.Pix[p]
		}
	}
	copy(d.Masks[i*plane:(i+1)*plane], mask.Pix)
	d.DOYs[i] = doy
	return nil
}

// Band returns the value of band b at row y, column x of acquisition i.
func (d *Dataset) Band(i, y, x, b int) uint16 {
	return d.Bands[((i*d.H+y)*d.W+x)*d.B+b]
}

// Mask returns the mask value at row y, column x of acquisition i.
func (d *Dataset) Mask(i, y, x int) uint8 {
	return d.Masks[(i*d.H+y)*d.W+x]
}

// Shapes returns the array shapes keyed by artifact name.
func (d *Dataset) Shapes() map[string][]int {
	return map[string][]int{
		BandsFile: {d.N, d.H, d.W, d.B},
		MasksFile: {d.N, d.H, d.W},
		DOYsFile:  {d.N},
	}
}

func (d *Dataset) check() error {
	switch {
	case d.N < 1:
		return fmt.Errorf("dataset has no acquisitions")
	case len(d.Bands) != d.N*d.H*d.W*d.B:
		return fmt.Errorf("bands hold %d values, want %d", len(d.Bands), d.N*d.H*d.W*d.B)
	case len(d.Masks) != d.N*d.H*d.W:
		return fmt.Errorf("masks hold %d values, want %d", len(d.Masks), d.N*d.H*d.W)
	case len(d.DOYs) != d.N:
		return fmt.Errorf("doys hold %d values, want %d", len(d.DOYs), d.N)
	}
	return nil
}
