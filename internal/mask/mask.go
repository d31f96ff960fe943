// Package mask derives the per-acquisition validity mask.
//
// A pixel is valid only when the scene classification puts it outside the
// exclusion set and no reflectance band reports no-data there. The two checks
// are independent and combined with AND.
package mask

import (
	"fmt"
	"sort"

	"github.com/specialistvlad/tilestackgo/internal/raster"
	"github.com/specialistvlad/tilestackgo/internal/resample"
)

// DefaultExclude lists the scene classes treated as unusable. Codes follow the
// Sentinel-2 L2A SCL scheme: no data, saturated or defective, dark area, cloud
// shadow, cloud medium and high probability.
var DefaultExclude = []int{0, 1, 2, 3, 8, 9}

// ClassSet is a lookup table over 16-bit class codes.
type ClassSet struct {
	codes map[uint16]struct{}
}

// NewClassSet builds a set from integer codes. Codes outside [0, 65535] are
// rejected.
func NewClassSet(codes []int) (ClassSet, error) {
	s := ClassSet{codes: make(map[uint16]struct{}, len(codes))}
	for _, c := range codes {
		if c < 0 || c > 0xffff {
			return ClassSet{}, fmt.Errorf("class code %d out of range", c)
		}
		s.codes[uint16(c)] = struct{}{}
	}
	return s, nil
}

// Contains reports whether code is in the set.
func (s ClassSet) Contains(code uint16) bool {
	_, ok := s.codes[code]
	return ok
}

// Codes returns the members in ascending order.
func (s ClassSet) Codes() []int {
	out := make([]int, 0, len(s.codes))
	for c := range s.codes {
		out = append(out, int(c))
	}
	sort.Ints(out)
	return out
}

// Classify marks classification pixels whose class is not excluded.
func Classify(scl raster.Grid[uint16], exclude ClassSet) raster.Grid[bool] {
	out := raster.New[bool](scl.Width, scl.Height)
	for i, v := range scl.Pix {
		out.Pix[i] = !exclude.Contains(v)
	}
	return out
}

// Builder accumulates the combined mask for one acquisition at target
// resolution.
type Builder struct {
	valid raster.Grid[bool]
}

// NewBuilder starts from the classification band at its native resolution and
// upsamples the class validity by ratio.
func NewBuilder(scl raster.Grid[uint16], ratio int, exclude ClassSet) *Builder {
	return &Builder{valid: resample.Upsample(Classify(scl, exclude), ratio)}
}

// Exclude clears every pixel where nodata is set. nodata must already be at
// target resolution.
func (b *Builder) Exclude(nodata raster.Grid[bool]) error {
	if !raster.SameShape(b.valid, nodata) {
		return fmt.Errorf("no-data raster %s does not match mask %s", nodata.Size(), b.valid.Size())
	}
	for i, nd := range nodata.Pix {
		if nd {
			b.valid.Pix[i] = false
		}
	}
	return nil
}

// Mask returns the combined mask. The Builder must not be used afterwards.
func (b *Builder) Mask() raster.Grid[bool] {
	return b.valid
}

// Bytes converts a boolean mask to the 0/1 byte form that gets persisted.
func Bytes(g raster.Grid[bool]) raster.Grid[uint8] {
	out := raster.New[uint8](g.Width, g.Height)
	for i, v := range g.Pix {
		if v {
			out.Pix[i] = 1
		}
	}
	return out
}
