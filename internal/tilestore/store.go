// Package tilestore persists assembled tiles under <dataset>/processed.
//
// Each tile is built in a hidden staging directory and renamed into place in
// one step, so a reader sees either nothing or a complete set of artifacts.
// The presence of bands.npy marks a tile as done.
package tilestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/specialistvlad/tilestackgo/internal/fsutil"
	"github.com/specialistvlad/tilestackgo/internal/npy"
)

// Artifact names inside a tile directory.
const (
	BandsFile           = "bands.npy"
	MasksFile           = "masks.npy"
	DOYsFile            = "doys.npy"
	MetadataJSONFile    = "metadata.json"
	MetadataParquetFile = "metadata.parquet"
	ManifestFile        = "manifest.json"
)

const stagingMarker = ".staging-"

// Store writes tiles below Root.
type Store struct {
	Root  string
	RunID string

	now func() time.Time
}

// New returns a store rooted at root with a fresh run id.
func New(root string) *Store {
	return &Store{Root: root, RunID: uuid.NewString(), now: time.Now}
}

// Dir is the final directory of tile.
func (s *Store) Dir(tile string) string {
	return filepath.Join(s.Root, tile)
}

// ErrTileCode is returned for a tile code that is not a single directory
// name inside the store root.
var ErrTileCode = errors.New("invalid tile code")

func checkTile(tile string) error {
	if !fsutil.IsPathComponent(tile) || strings.HasPrefix(tile, ".") {
		return fmt.Errorf("%w: %q", ErrTileCode, tile)
	}
	return nil
}

// Done reports whether tile has already been committed.
func (s *Store) Done(tile string) (bool, error) {
	if err := checkTile(tile); err != nil {
		return false, err
	}
	return fsutil.Exists(filepath.Join(s.Dir(tile), BandsFile))
}

// Tiles lists committed tiles in ascending order.
func (s *Store) Tiles() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		done, err := s.Done(e.Name())
		if err != nil {
			return nil, err
		}
		if done {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Sweep removes staging directories left behind by an interrupted run and
// returns how many were removed.
func (s *Store) Sweep() (int, error) {
	entries, err := os.ReadDir(s.Root)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), ".") && strings.Contains(e.Name(), stagingMarker) {
			if err := os.RemoveAll(filepath.Join(s.Root, e.Name())); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// Commit writes every artifact of tile and publishes them atomically. A
// directory for tile that lacks bands.npy is treated as debris and replaced.
// On error or cancellation nothing becomes visible.
func (s *Store) Commit(ctx context.Context, tile string, ds *Dataset, records []Record, bands []string) (err error) {
	if err := checkTile(tile); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if err := ds.check(); err != nil {
		return fmt.Errorf("commit %s: %w", tile, err)
	}
	if len(records) != ds.N {
		return fmt.Errorf("commit %s: %d metadata rows for %d acquisitions", tile, len(records), ds.N)
	}
	if len(bands) != ds.B {
		return fmt.Errorf("commit %s: %d band names for %d bands", tile, len(bands), ds.B)
	}
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return err
	}

	staging := filepath.Join(s.Root, "."+tile+stagingMarker+uuid.NewString())
	if err := os.Mkdir(staging, 0o755); err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()

	m := &Manifest{
		Tile:      tile,
		RunID:     s.RunID,
		CreatedAt: s.now().UTC(),
		Bands:     bands,
		Shapes:    ds.Shapes(),
	}

	steps := []struct {
		name  string
		write func(io.Writer) error
	}{
		{MetadataJSONFile, func(w io.Writer) error { return writeMetadataJSON(w, records) }},
		{MetadataParquetFile, func(w io.Writer) error { return writeMetadataParquet(w, records, bands) }},
		{DOYsFile, func(w io.Writer) error { return npy.Write(w, []int{ds.N}, ds.DOYs) }},
		{MasksFile, func(w io.Writer) error { return npy.Write(w, []int{ds.N, ds.H, ds.W}, ds.Masks) }},
		{BandsFile, func(w io.Writer) error { return npy.Write(w, []int{ds.N, ds.H, ds.W, ds.B}, ds.Bands) }},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		a, err := writeDurable(filepath.Join(staging, step.name), step.write)
		if err != nil {
			return fmt.Errorf("commit %s: write %s: %w", tile, step.name, err)
		}
		a.Name = step.name
		m.Artifacts = append(m.Artifacts, a)
	}
	if _, err := writeDurable(filepath.Join(staging, ManifestFile), m.encode); err != nil {
		return fmt.Errorf("commit %s: write %s: %w", tile, ManifestFile, err)
	}
	if err := syncDir(staging); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	target := s.Dir(tile)
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("commit %s: remove stale output: %w", tile, err)
	}
	if err := os.Rename(staging, target); err != nil {
		return fmt.Errorf("commit %s: %w", tile, err)
	}
	committed = true
	return syncDir(s.Root)
}

// writeDurable streams write into path, fsyncs it and returns the size and
// checksum of what was written.
func writeDurable(path string, write func(io.Writer) error) (Artifact, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Artifact{}, err
	}
	defer f.Close()

	h := xxhash.New()
	cw := &countingWriter{w: io.MultiWriter(f, h)}
	if err := write(cw); err != nil {
		return Artifact{}, err
	}
	if err := f.Sync(); err != nil {
		return Artifact{}, err
	}
	if err := f.Close(); err != nil {
		return Artifact{}, err
	}
	return Artifact{Size: cw.n, XXHash64: fmt.Sprintf("%016x", h.Sum64())}, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func syncDir(dir string) error {
	df, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer df.Close()
	return df.Sync()
}

// Load reads the arrays of a committed tile back into memory.
func (s *Store) Load(tile string) (*Dataset, error) {
	if err := checkTile(tile); err != nil {
		return nil, err
	}
	dir := s.Dir(tile)
	bandsH, bands, err := readArray[uint16](filepath.Join(dir, BandsFile))
	if err != nil {
		return nil, err
	}
	_, masks, err := readArray[uint8](filepath.Join(dir, MasksFile))
	if err != nil {
		return nil, err
	}
	_, doys, err := readArray[uint16](filepath.Join(dir, DOYsFile))
	if err != nil {
		return nil, err
	}
	if len(bandsH.Shape) != 4 {
		return nil, fmt.Errorf("%s: bands shape %v is not 4-D", tile, bandsH.Shape)
	}
	ds := &Dataset{
		N: bandsH.Shape[0], H: bandsH.Shape[1], W: bandsH.Shape[2], B: bandsH.Shape[3],
		Bands: bands, Masks: masks, DOYs: doys,
	}
	if err := ds.check(); err != nil {
		return nil, fmt.Errorf("%s: %w", tile, err)
	}
	return ds, nil
}

func readArray[T npy.Element](path string) (npy.Header, []T, error) {
	f, err := os.Open(path)
	if err != nil {
		return npy.Header{}, nil, err
	}
	defer f.Close()
	h, data, err := npy.Read[T](f)
	if err != nil {
		return npy.Header{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, data, nil
}
