package tilestore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/tilestackgo/internal/catalog"
	"github.com/specialistvlad/tilestackgo/internal/npy"
	"github.com/specialistvlad/tilestackgo/internal/raster"
)

func sampleDataset(t *testing.T) (*Dataset, []Record) {
	t.Helper()

	ds := NewDataset(2, 2, 3, 2)
	for i := 0; i < 2; i++ {
		red := raster.New[uint16](3, 2)
		nir := raster.New[uint16](3, 2)
		for p := range red.Pix {
			red.Pix[p] = uint16(100*i + p)
			nir.Pix[p] = uint16(1000 + 100*i + p)
		}
		m := raster.Filled[uint8](3, 2, 1)
		m.Pix[0] = 0
		require.NoError(t, ds.SetRow(i, []raster.Grid[uint16]{red, nir}, m, uint16(10+i)))
	}
	records := []Record{
		{TileCode: "31UFU", ID: "a", Timestamp: time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC), DayOfYear: 10, Baseline: "05.00", Assets: map[string]string{"red": "r", "nir": "n"}},
		{TileCode: "31UFU", ID: "b", Timestamp: time.Date(2024, 1, 11, 10, 0, 0, 0, time.UTC), DayOfYear: 11, Assets: map[string]string{"red": "r2"}},
	}
	return ds, records
}

func TestDataset_SetRowIsBandLast(t *testing.T) {
	t.Parallel()

	ds, _ := sampleDataset(t)

	assert.Equal(t, uint16(104), ds.Band(1, 1, 1, 0))
	assert.Equal(t, uint16(1104), ds.Band(1, 1, 1, 1))
	assert.Equal(t, []uint16{0, 1000, 1, 1001}, ds.Bands[:4])
	assert.Equal(t, uint8(0), ds.Mask(1, 0, 0))
	assert.Equal(t, uint8(1), ds.Mask(1, 0, 1))
	assert.Equal(t, []uint16{10, 11}, ds.DOYs)
}

func TestDataset_SetRowRejectsWrongShapes(t *testing.T) {
	t.Parallel()

	ds := NewDataset(1, 2, 2, 1)
	ok := raster.New[uint16](2, 2)
	m := raster.New[uint8](2, 2)

	assert.Error(t, ds.SetRow(1, []raster.Grid[uint16]{ok}, m, 1))
	assert.Error(t, ds.SetRow(0, nil, m, 1))
	assert.Error(t, ds.SetRow(0, []raster.Grid[uint16]{raster.New[uint16](3, 2)}, m, 1))
	assert.Error(t, ds.SetRow(0, []raster.Grid[uint16]{ok}, raster.New[uint8](1, 1), 1))
}

func TestCommit_WritesAllArtifacts(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	s := New(t.TempDir())
	ds, records := sampleDataset(t)

	// --- Act ---
	err := s.Commit(context.Background(), "31UFU", ds, records, []string{"red", "nir"})

	// --- Assert ---
	require.NoError(t, err)
	done, err := s.Done("31UFU")
	require.NoError(t, err)
	assert.True(t, done)

	for _, name := range []string{BandsFile, MasksFile, DOYsFile, MetadataJSONFile, MetadataParquetFile, ManifestFile} {
		assert.FileExists(t, filepath.Join(s.Dir("31UFU"), name))
	}

	f, err := os.Open(filepath.Join(s.Dir("31UFU"), BandsFile))
	require.NoError(t, err)
	defer f.Close()
	h, err := npy.ReadHeader(f)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 3, 2}, h.Shape)
	assert.Equal(t, "<u2", h.Descr)

	got, err := s.Load("31UFU")
	require.NoError(t, err)
	assert.Equal(t, ds, got)

	raw, err := os.ReadFile(filepath.Join(s.Dir("31UFU"), MetadataJSONFile))
	require.NoError(t, err)
	rows, err := ReadMetadataJSON(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, records, rows)
	assert.Equal(t, 2, bytes.Count(raw, []byte("\n")))

	m, err := s.ReadManifest("31UFU")
	require.NoError(t, err)
	assert.Equal(t, s.RunID, m.RunID)
	assert.Len(t, m.Artifacts, 5)
	assert.Equal(t, []int{2}, m.Shapes[DOYsFile])
	assert.NoError(t, s.Verify("31UFU"))

	entries, err := os.ReadDir(s.Root)
	require.NoError(t, err)
	require.Len(t, entries, 1, "staging directory must be gone")
}

func TestCommit_ByteIdenticalAcrossStores(t *testing.T) {
	t.Parallel()

	ds, records := sampleDataset(t)
	a, b := New(t.TempDir()), New(t.TempDir())
	require.NoError(t, a.Commit(context.Background(), "T", ds, records, []string{"red", "nir"}))
	require.NoError(t, b.Commit(context.Background(), "T", ds, records, []string{"red", "nir"}))

	for _, name := range []string{BandsFile, MasksFile, DOYsFile, MetadataJSONFile} {
		x, err := os.ReadFile(filepath.Join(a.Dir("T"), name))
		require.NoError(t, err)
		y, err := os.ReadFile(filepath.Join(b.Dir("T"), name))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(x, y), name)
	}
}

func TestCommit_CancelledLeavesNothing(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	ds, records := sampleDataset(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Commit(ctx, "31UFU", ds, records, []string{"red", "nir"})

	require.ErrorIs(t, err, context.Canceled)
	entries, err := os.ReadDir(s.Root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCommit_ReplacesIncompleteDirectory(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	stale := filepath.Join(s.Dir("31UFU"), MasksFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0o644))
	ds, records := sampleDataset(t)

	require.NoError(t, s.Commit(context.Background(), "31UFU", ds, records, []string{"red", "nir"}))

	assert.NoError(t, s.Verify("31UFU"))
}

func TestCommit_UnsafeTileCodeKeepsCommittedTiles(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := filepath.Join(t.TempDir(), "processed")
	s := New(root)
	ds, records := sampleDataset(t)
	require.NoError(t, s.Commit(context.Background(), "31UFU", ds, records, []string{"red", "nir"}))

	for _, code := range []string{".", "..", "", "a/b", "../31UFU", ".31UFU.staging-x"} {
		// --- Act ---
		err := s.Commit(context.Background(), code, ds, records, []string{"red", "nir"})
		_, doneErr := s.Done(code)

		// --- Assert ---
		assert.ErrorIs(t, err, ErrTileCode, "commit %q", code)
		assert.ErrorIs(t, doneErr, ErrTileCode, "done %q", code)
	}
	done, err := s.Done("31UFU")
	require.NoError(t, err)
	assert.True(t, done, "committed tile must survive")
	assert.NoError(t, s.Verify("31UFU"))
	_, err = s.Load("..")
	assert.ErrorIs(t, err, ErrTileCode)
}

func TestCommit_RejectsInconsistentInput(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	ds, records := sampleDataset(t)

	assert.Error(t, s.Commit(context.Background(), "T", ds, records[:1], []string{"red", "nir"}))
	assert.Error(t, s.Commit(context.Background(), "T", ds, records, []string{"red"}))
	assert.Error(t, s.Commit(context.Background(), "T", &Dataset{}, nil, nil))
}

func TestVerify_DetectsCorruption(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	ds, records := sampleDataset(t)
	require.NoError(t, s.Commit(context.Background(), "31UFU", ds, records, []string{"red", "nir"}))

	path := filepath.Join(s.Dir("31UFU"), MasksFile)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 1
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	err = s.Verify("31UFU")
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.ErrorContains(t, err, MasksFile)
}

func TestTilesAndSweep(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	ds, records := sampleDataset(t)
	require.NoError(t, s.Commit(context.Background(), "B", ds, records, []string{"red", "nir"}))
	require.NoError(t, s.Commit(context.Background(), "A", ds, records, []string{"red", "nir"}))
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root, "C"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root, ".D"+stagingMarker+"x"), 0o755))

	tiles, err := s.Tiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, tiles)

	n, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoDirExists(t, filepath.Join(s.Root, ".D"+stagingMarker+"x"))
}

func TestStore_MissingRoot(t *testing.T) {
	t.Parallel()

	s := New(filepath.Join(t.TempDir(), "processed"))

	tiles, err := s.Tiles()
	require.NoError(t, err)
	assert.Empty(t, tiles)
	n, err := s.Sweep()
	require.NoError(t, err)
	assert.Zero(t, n)
	done, err := s.Done("X")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestCommit_MetadataParquetReadsAsCatalog(t *testing.T) {
	t.Parallel()

	s := New(t.TempDir())
	ds, records := sampleDataset(t)
	require.NoError(t, s.Commit(context.Background(), "31UFU", ds, records, []string{"red", "nir"}))

	got, err := catalog.ReadTable(context.Background(), filepath.Join(s.Dir("31UFU"), MetadataParquetFile))

	require.NoError(t, err)
	require.Len(t, got, 2)
	for i, rec := range records {
		assert.Equal(t, rec.ID, got[i].ID)
		assert.Equal(t, rec.TileCode, got[i].TileCode)
		assert.True(t, rec.Timestamp.Equal(got[i].Timestamp))
		assert.Equal(t, rec.Assets, got[i].Assets)
		assert.Equal(t, rec.DayOfYear, got[i].DayOfYear())
	}
}
