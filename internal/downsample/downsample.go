// Package downsample thins target-grid rasters by strided point sampling.
package downsample

import (
	"fmt"

	"github.com/specialistvlad/tilestackgo/internal/raster"
)

// Size returns how many samples a stride keeps along an axis of length n.
func Size(n, stride int) int {
	if stride < 1 {
		panic(fmt.Sprintf("downsample: invalid stride %d", stride))
	}
	return (n + stride - 1) / stride
}

// Indices lists the positions kept along an axis of length n: 0, stride,
// 2*stride, and so on.
func Indices(n, stride int) []int {
	out := make([]int, 0, Size(n, stride))
	for i := 0; i < n; i += stride {
		out = append(out, i)
	}
	return out
}

// Decimate keeps the pixels at rows and columns 0, stride, 2*stride, ...
// Masks and bands of one acquisition go through the same call so index (y, x)
// refers to the same location in every output.
func Decimate[T raster.Pixel](g raster.Grid[T], stride int) raster.Grid[T] {
	if stride == 1 {
		return g.Clone()
	}
	out := raster.New[T](Size(g.Width, stride), Size(g.Height, stride))
	i := 0
	for y := 0; y < g.Height; y += stride {
		row := g.Pix[y*g.Width : (y+1)*g.Width]
		for x := 0; x < g.Width; x += stride {
			out.Pix[i] = row[x]
			i++
		}
	}
	return out
}
