package tilestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ErrCorrupt is returned by Verify when an artifact no longer matches the
// manifest.
var ErrCorrupt = errors.New("tile artifact does not match manifest")

// Artifact describes one file of a committed tile.
type Artifact struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	XXHash64 string `json:"xxhash64"`
}

// Manifest is written next to the arrays of every committed tile.
type Manifest struct {
	Tile      string           `json:"tile"`
	RunID     string           `json:"run_id"`
	CreatedAt time.Time        `json:"created_at"`
	Bands     []string         `json:"bands"`
	Shapes    map[string][]int `json:"shapes"`
	Artifacts []Artifact       `json:"artifacts"`
}

func (m *Manifest) encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// ReadManifest loads the manifest of tile.
func (s *Store) ReadManifest(tile string) (*Manifest, error) {
	if err := checkTile(tile); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(s.Dir(tile), ManifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%s: decode manifest: %w", tile, err)
	}
	return &m, nil
}

// Verify recomputes the size and checksum of every artifact listed in the
// manifest of tile. Mismatches wrap ErrCorrupt.
func (s *Store) Verify(tile string) error {
	m, err := s.ReadManifest(tile)
	if err != nil {
		return err
	}
	var errs []error
	for _, a := range m.Artifacts {
		got, err := checksum(filepath.Join(s.Dir(tile), a.Name))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", tile, a.Name, err))
			continue
		}
		if got.Size != a.Size || got.XXHash64 != a.XXHash64 {
			errs = append(errs, fmt.Errorf("%w: %s/%s has %d bytes xxhash64 %s, manifest says %d bytes %s",
				ErrCorrupt, tile, a.Name, got.Size, got.XXHash64, a.Size, a.XXHash64))
		}
	}
	return errors.Join(errs...)
}

func checksum(path string) (Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return Artifact{}, err
	}
	defer f.Close()

	h := xxhash.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Size: n, XXHash64: fmt.Sprintf("%016x", h.Sum64())}, nil
}
