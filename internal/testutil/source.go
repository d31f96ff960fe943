package testutil

import (
	"fmt"
	"io/fs"
	"sync"

	"github.com/specialistvlad/tilestackgo/internal/raster"
)

// RasterSource matches the assembler's Source without importing it.
type RasterSource interface {
	Read(band, id string) (*raster.Band, error)
}

// MemorySource serves rasters from memory, keyed by band and id.
type MemorySource struct {
	mu      sync.Mutex
	rasters map[string]*raster.Band
}

// NewMemorySource returns an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{rasters: make(map[string]*raster.Band)}
}

// Put stores g for band and id. A nil nodata stores a raster without a
// declared sentinel.
func (s *MemorySource) Put(band, id string, g raster.Grid[uint16], nodata *uint16) {
	b := &raster.Band{Grid: g}
	if nodata != nil {
		b.NoData, b.HasNoData = *nodata, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rasters[band+"/"+id] = b
}

// Read implements RasterSource. Unknown keys report fs.ErrNotExist.
func (s *MemorySource) Read(band, id string) (*raster.Band, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rasters[band+"/"+id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", band, id, fs.ErrNotExist)
	}
	out := *b
	out.Grid = b.Grid.Clone()
	return &out, nil
}

// CountingSource wraps a source and counts reads per band/id key.
type CountingSource struct {
	Inner RasterSource

	mu    sync.Mutex
	reads map[string]int
	total int
}

// Read implements RasterSource.
func (c *CountingSource) Read(band, id string) (*raster.Band, error) {
	c.mu.Lock()
	if c.reads == nil {
		c.reads = make(map[string]int)
	}
	c.reads[band+"/"+id]++
	c.total++
	c.mu.Unlock()
	return c.Inner.Read(band, id)
}

// Total returns the number of reads so far.
func (c *CountingSource) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Reads returns how often band of id was read.
func (c *CountingSource) Reads(band, id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads[band+"/"+id]
}

// Uint16 returns a pointer to v, for optional no-data values.
func Uint16(v uint16) *uint16 { return &v }
