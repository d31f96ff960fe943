package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/tilestackgo/internal/raster"
)

func ramp(w, h int) raster.Grid[uint16] {
	g := raster.New[uint16](w, h)
	for i := range g.Pix {
		g.Pix[i] = uint16(i + 1)
	}
	return g
}

func TestUpsample_IdentityAtRatioOne(t *testing.T) {
	t.Parallel()

	src := ramp(3, 2)
	out := Upsample(src, 1)

	assert.Equal(t, src, out)
	out.Pix[0] = 99
	assert.Equal(t, uint16(1), src.Pix[0], "ratio 1 must copy, not alias")
}

func TestUpsample_BlocksAreConstant(t *testing.T) {
	t.Parallel()

	for _, k := range []int{2, 3, 6} {
		src := ramp(3, 2)
		out := Upsample(src, k)

		require.Equal(t, 3*k, out.Width)
		require.Equal(t, 2*k, out.Height)
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				assert.Equal(t, src.At(x/k, y/k), out.At(x, y), "ratio %d at (%d,%d)", k, x, y)
			}
		}
	}
}

func TestUpsample_Masks(t *testing.T) {
	t.Parallel()

	src := raster.Grid[bool]{Width: 2, Height: 1, Pix: []bool{true, false}}
	out := Upsample(src, 2)

	assert.Equal(t, []bool{true, true, false, false, true, true, false, false}, out.Pix)
}

func TestUpsample_PanicsOnBadRatio(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { Upsample(ramp(1, 1), 0) })
}

func TestBand_NoDataSurvivesUpsampling(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	src := raster.Grid[uint16]{Width: 2, Height: 2, Pix: []uint16{0, 5, 7, 0}}

	// --- Act ---
	up, nodata := Band(src, 2, 0)

	// --- Assert ---
	require.True(t, raster.SameShape(up, nodata))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, up.At(x, y) == 0, nodata.At(x, y))
		}
	}
	assert.True(t, nodata.At(0, 0))
	assert.True(t, nodata.At(3, 3))
	assert.False(t, nodata.At(2, 0))
}

func TestCheckGrid(t *testing.T) {
	t.Parallel()

	assert.NoError(t, CheckGrid(raster.New[uint16](50, 50), 2, 100))
	assert.Error(t, CheckGrid(raster.New[uint16](50, 49), 2, 100))
	assert.Error(t, CheckGrid(raster.New[uint16](100, 100), 2, 100))
}
