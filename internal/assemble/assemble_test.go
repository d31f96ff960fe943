package assemble

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/tilestackgo/internal/catalog"
	"github.com/specialistvlad/tilestackgo/internal/config"
	"github.com/specialistvlad/tilestackgo/internal/failure"
	"github.com/specialistvlad/tilestackgo/internal/raster"
	"github.com/specialistvlad/tilestackgo/internal/testutil"
	"github.com/specialistvlad/tilestackgo/internal/tilestore"
)

// smallConfig is a 12x12 grid decimated by 2 with bands at ratios 1, 2 and 3.
func smallConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.DatasetDir = dir
	cfg.GridSize = 12
	cfg.Stride = 2
	cfg.Bands = []config.Band{
		{Name: "red", Ratio: 1},
		{Name: "swir16", Ratio: 2},
		{Name: "nir09", Ratio: 3},
	}
	return cfg
}

// putClear stores rasters for id where every pixel is valid and clear.
func putClear(src *testutil.MemorySource, id string) {
	zero := testutil.Uint16(0)
	src.Put("red", id, testutil.Ramp(12, 12, 1), zero)
	src.Put("swir16", id, testutil.Ramp(6, 6, 1000), zero)
	src.Put("nir09", id, testutil.Ramp(4, 4, 2000), zero)
	src.Put("scl", id, raster.Filled[uint16](6, 6, 4), nil)
}

func group(code string, ids ...string) *catalog.TileGroup {
	g := &catalog.TileGroup{Code: code}
	day := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range ids {
		g.Acquisitions = append(g.Acquisitions, catalog.Acquisition{
			ID:        id,
			TileCode:  code,
			Timestamp: day.AddDate(0, 0, 5*i),
			Assets:    map[string]string{"red": id},
		})
	}
	return g
}

func newAssembler(t *testing.T, cfg *config.Config, src Source) (*Assembler, *tilestore.Store) {
	t.Helper()
	store := tilestore.New(cfg.OutputDir())
	a, err := New(cfg, src, store)
	require.NoError(t, err)
	return a, store
}

func TestAssemble_ClearAndValid(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	cfg := smallConfig(t.TempDir())
	src := testutil.NewMemorySource()
	putClear(src, "a")
	putClear(src, "b")
	a, store := newAssembler(t, cfg, src)

	// --- Act ---
	outcome, err := a.Assemble(ctx, group("T", "a", "b"))

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)

	ds, err := store.Load("T")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 6, 6, 3}, []int{ds.N, ds.H, ds.W, ds.B})
	assert.Len(t, ds.Masks, 2*6*6)
	assert.Equal(t, []uint16{61, 66}, ds.DOYs)
	for _, m := range ds.Masks {
		require.Equal(t, uint8(1), m)
	}

	red := testutil.Ramp(12, 12, 1)
	swir := testutil.Ramp(6, 6, 1000)
	nir09 := testutil.Ramp(4, 4, 2000)
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			assert.Equal(t, red.At(2*x, 2*y), ds.Band(1, y, x, 0))
			assert.Equal(t, swir.At(x, y), ds.Band(1, y, x, 1))
			assert.Equal(t, nir09.At(2*x/3, 2*y/3), ds.Band(1, y, x, 2))
		}
	}
}

func TestAssemble_MaskConjunction(t *testing.T) {
	t.Parallel()

	ctx, _ := testutil.Context(t)
	cfg := smallConfig(t.TempDir())
	src := testutil.NewMemorySource()
	putClear(src, "a")

	scl := raster.Filled[uint16](6, 6, 4)
	scl.Set(0, 0, 9) // cloud high probability
	src.Put("scl", "a", scl, nil)

	swir := testutil.Ramp(6, 6, 1000)
	swir.Set(3, 4, 0)
	src.Put("swir16", "a", swir, testutil.Uint16(0))

	a, store := newAssembler(t, cfg, src)
	_, err := a.Assemble(ctx, group("T", "a"))
	require.NoError(t, err)

	ds, err := store.Load("T")
	require.NoError(t, err)
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			want := uint8(1)
			if (x == 0 && y == 0) || (x == 3 && y == 4) {
				want = 0
			}
			assert.Equal(t, want, ds.Mask(0, y, x), "pixel %d,%d", x, y)
		}
	}
}

func TestAssemble_FullyNoDataBandZeroesMask(t *testing.T) {
	t.Parallel()

	ctx, _ := testutil.Context(t)
	cfg := smallConfig(t.TempDir())
	src := testutil.NewMemorySource()
	putClear(src, "a")
	src.Put("nir09", "a", raster.Filled[uint16](4, 4, 65535), testutil.Uint16(65535))

	a, store := newAssembler(t, cfg, src)
	_, err := a.Assemble(ctx, group("T", "a"))
	require.NoError(t, err)

	ds, err := store.Load("T")
	require.NoError(t, err)
	for _, m := range ds.Masks {
		require.Zero(t, m)
	}
}

func TestAssemble_SkipsDoneTileWithoutReads(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	cfg := smallConfig(t.TempDir())
	mem := testutil.NewMemorySource()
	putClear(mem, "a")
	first, store := newAssembler(t, cfg, mem)
	_, err := first.Assemble(ctx, group("T", "a"))
	require.NoError(t, err)

	masksPath := filepath.Join(store.Dir("T"), tilestore.MasksFile)
	before, err := os.ReadFile(masksPath)
	require.NoError(t, err)
	info, err := os.Stat(masksPath)
	require.NoError(t, err)

	counting := &testutil.CountingSource{Inner: mem}
	second, _ := newAssembler(t, cfg, counting)

	// --- Act ---
	outcome, err := second.Assemble(ctx, group("T", "a"))

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, Skipped, outcome)
	assert.Zero(t, counting.Total())
	after, err := os.ReadFile(masksPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	info2, err := os.Stat(masksPath)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), info2.ModTime())
}

func TestAssemble_MissingRasterFailsTile(t *testing.T) {
	t.Parallel()

	ctx, _ := testutil.Context(t)
	cfg := smallConfig(t.TempDir())
	src := testutil.NewMemorySource()
	putClear(src, "a")
	putClear(src, "b")
	// Drop b's swir16 by replacing the source with one that lacks it.
	partial := testutil.NewMemorySource()
	putClear(partial, "a")
	for _, band := range []string{"red", "nir09", "scl"} {
		r, err := src.Read(band, "b")
		require.NoError(t, err)
		partial.Put(band, "b", r.Grid, testutil.Uint16(0))
	}
	counting := &testutil.CountingSource{Inner: partial}
	a, store := newAssembler(t, cfg, counting)

	_, err := a.Assemble(ctx, group("T", "a", "b"))

	require.Error(t, err)
	var de *failure.DataError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "T", de.Tile)
	assert.Equal(t, "b", de.ID)
	assert.Equal(t, "swir16", de.Band)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	done, err := store.Done("T")
	require.NoError(t, err)
	assert.False(t, done)
	assert.NoDirExists(t, store.Dir("T"))
}

func TestProcess_GridMismatch(t *testing.T) {
	t.Parallel()

	cfg := smallConfig(t.TempDir())
	src := testutil.NewMemorySource()
	putClear(src, "a")
	src.Put("swir16", "a", testutil.Ramp(5, 6, 1), testutil.Uint16(0))
	a, _ := newAssembler(t, cfg, src)

	_, err := a.Process(group("T", "a").Acquisitions[0])

	var de *failure.DataError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "swir16", de.Band)
	assert.ErrorContains(t, err, "does not cover target grid 12x12")
}

func TestNew_RejectsInvalidInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := tilestore.New(filepath.Join(dir, "processed"))
	src := testutil.NewMemorySource()
	zeroStride := smallConfig(dir)
	zeroStride.Stride = 0
	badRatio := smallConfig(dir)
	badRatio.Bands[2].Ratio = 5

	testCases := []struct {
		name    string
		cfg     *config.Config
		src     Source
		store   *tilestore.Store
		wantErr string
	}{
		{name: "nil config", cfg: nil, src: src, store: store, wantErr: "no configuration"},
		{name: "nil source", cfg: smallConfig(dir), src: nil, store: store, wantErr: "no raster source"},
		{name: "nil store", cfg: smallConfig(dir), src: src, store: nil, wantErr: "no tile store"},
		{name: "zero stride", cfg: zeroStride, src: src, store: store, wantErr: "stride must be at least 1"},
		{name: "ratio not dividing grid", cfg: badRatio, src: src, store: store, wantErr: "does not divide grid_size"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a, err := New(tc.cfg, tc.src, tc.store)

			require.Error(t, err)
			assert.Nil(t, a)
			assert.True(t, failure.IsConfig(err))
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestProcess_NoDataFallback(t *testing.T) {
	t.Parallel()

	cfg := smallConfig(t.TempDir())
	src := testutil.NewMemorySource()
	putClear(src, "a")
	red := testutil.Ramp(12, 12, 1)
	red.Set(0, 0, 7)
	src.Put("red", "a", red, nil)
	a, _ := newAssembler(t, cfg, src)
	acq := group("T", "a").Acquisitions[0]

	_, err := a.Process(acq)
	assert.ErrorIs(t, err, raster.ErrNoData)
	assert.True(t, failure.IsData(err))

	cfg.Bands[0].NoData = testutil.Uint16(7)
	row, err := a.Process(acq)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), row.Mask.At(0, 0))
	assert.Equal(t, uint8(1), row.Mask.At(1, 0))
}

func TestAssemble_CancelledLeavesNoArtifact(t *testing.T) {
	t.Parallel()

	ctx, _ := testutil.Context(t)
	ctx, cancel := context.WithCancel(ctx)
	cancel()
	cfg := smallConfig(t.TempDir())
	src := testutil.NewMemorySource()
	putClear(src, "a")
	a, store := newAssembler(t, cfg, src)

	_, err := a.Assemble(ctx, group("T", "a"))

	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, failure.IsData(err))
	assert.NoDirExists(t, store.Dir("T"))
}

func TestAssemble_ByteIdenticalRerun(t *testing.T) {
	t.Parallel()

	ctx, _ := testutil.Context(t)
	src := testutil.NewMemorySource()
	putClear(src, "a")
	putClear(src, "b")

	read := func() map[string][]byte {
		cfg := smallConfig(t.TempDir())
		a, store := newAssembler(t, cfg, src)
		_, err := a.Assemble(ctx, group("T", "a", "b"))
		require.NoError(t, err)
		out := make(map[string][]byte)
		for _, name := range []string{tilestore.BandsFile, tilestore.MasksFile, tilestore.DOYsFile, tilestore.MetadataJSONFile} {
			raw, err := os.ReadFile(filepath.Join(store.Dir("T"), name))
			require.NoError(t, err)
			out[name] = raw
		}
		return out
	}

	assert.Equal(t, read(), read())
}

func TestAssemble_FileSourceHundredGrid(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ctx, _ := testutil.Context(t)
	data := testutil.NewDataset(t)
	cfg := config.Default()
	cfg.DatasetDir = data.Dir
	cfg.GridSize = 100
	cfg.Stride = 10
	cfg.Bands = []config.Band{{Name: "red", Ratio: 1}, {Name: "swir16", Ratio: 2}}

	data.WriteRaster(t, "red", "a", testutil.Ramp(100, 100, 1), 16, "0")
	data.WriteRaster(t, "swir16", "a", testutil.Ramp(50, 50, 1), 16, "0")
	data.WriteRaster(t, "scl", "a", raster.Filled[uint16](50, 50, 4), 8, "")

	a, store := newAssembler(t, cfg, FileSource{Dir: data.Dir, Ext: data.Ext})

	// --- Act ---
	_, err := a.Assemble(ctx, group("T", "a"))

	// --- Assert ---
	require.NoError(t, err)
	ds, err := store.Load("T")
	require.NoError(t, err)
	assert.Equal(t, 10, ds.H)
	assert.Equal(t, 10, ds.W)
	red := testutil.Ramp(100, 100, 1)
	for j := 0; j < 10; j++ {
		for i := 0; i < 10; i++ {
			assert.Equal(t, red.At(10*i, 10*j), ds.Band(0, j, i, 0))
		}
	}
	assert.NoError(t, store.Verify("T"))
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "skipped", Skipped.String())
}
