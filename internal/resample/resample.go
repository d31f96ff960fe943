// Package resample brings native-resolution bands onto the common target grid.
//
// Upsampling is nearest-neighbour block replication: a native pixel covering
// ratio x ratio target pixels is copied into each of them. Values are never
// interpolated, so no-data sentinels survive the trip unchanged.
package resample

import (
	"fmt"

	"github.com/specialistvlad/tilestackgo/internal/raster"
)

// Upsample returns g scaled by ratio on both axes. Every ratio x ratio block of
// the result is constant and equal to the source pixel it came from. A ratio
// of 1 yields an identity copy.
func Upsample[T raster.Pixel](g raster.Grid[T], ratio int) raster.Grid[T] {
	if ratio < 1 {
		panic(fmt.Sprintf("resample: invalid ratio %d", ratio))
	}
	if ratio == 1 {
		return g.Clone()
	}

	out := raster.New[T](g.Width*ratio, g.Height*ratio)
	for y := 0; y < g.Height; y++ {
		src := g.Pix[y*g.Width : (y+1)*g.Width]
		row := out.Pix[y*ratio*out.Width : (y*ratio+1)*out.Width]
		for x, v := range src {
			block := row[x*ratio : (x+1)*ratio]
			for i := range block {
				block[i] = v
			}
		}
		// Remaining rows of the block repeat the first one.
		for r := 1; r < ratio; r++ {
			copy(out.Pix[(y*ratio+r)*out.Width:(y*ratio+r+1)*out.Width], row)
		}
	}
	return out
}

// NoData marks every pixel of g equal to sentinel.
func NoData(g raster.Grid[uint16], sentinel uint16) raster.Grid[bool] {
	out := raster.New[bool](g.Width, g.Height)
	for i, v := range g.Pix {
		out.Pix[i] = v == sentinel
	}
	return out
}

// Band upsamples a reflectance band and derives its no-data raster at target
// resolution in one call.
func Band(g raster.Grid[uint16], ratio int, sentinel uint16) (raster.Grid[uint16], raster.Grid[bool]) {
	up := Upsample(g, ratio)
	return up, NoData(up, sentinel)
}

// CheckGrid verifies that a native raster scaled by ratio covers exactly the
// size x size target grid.
func CheckGrid[T raster.Pixel](g raster.Grid[T], ratio, size int) error {
	if g.Width*ratio != size || g.Height*ratio != size {
		return fmt.Errorf("native grid %s at ratio %d does not cover target grid %dx%d", g.Size(), ratio, size, size)
	}
	return nil
}
