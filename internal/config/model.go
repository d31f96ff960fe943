package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/specialistvlad/tilestackgo/internal/failure"
	"github.com/specialistvlad/tilestackgo/internal/mask"
)

// Band is one reflectance band. Ratio is how many target pixels one native
// pixel spans along each axis. NoData is used only when the raster file does
// not declare its own sentinel.
type Band struct {
	Name   string
	Ratio  int
	NoData *uint16
}

// Classification describes the scene classification band that drives the
// validity mask.
type Classification struct {
	Name    string
	Ratio   int
	Exclude []int
}

// Config is the complete description of one assembly run.
type Config struct {
	// DatasetDir holds <band>/<id>.<RasterExt> inputs and receives processed/.
	DatasetDir string
	// Table is the acquisition table, relative to DatasetDir unless absolute.
	Table     string
	RasterExt string

	GridSize int
	Stride   int
	Workers  int
	// Baseline keeps only acquisitions of this processing baseline when set.
	Baseline string

	Bands          []Band
	Classification Classification
}

// Sentinel-2 L2A defaults.
const (
	DefaultGridSize = 10980
	DefaultStride   = 10
	DefaultWorkers  = 1
)

// Default returns the Sentinel-2 L2A preset: eleven reflectance bands at 10,
// 20 and 60 m resampled onto the 10 m grid, with SCL at 20 m.
func Default() *Config {
	bands := []Band{
		{Name: "red", Ratio: 1},
		{Name: "blue", Ratio: 1},
		{Name: "green", Ratio: 1},
		{Name: "nir", Ratio: 1},
		{Name: "nir08", Ratio: 2},
		{Name: "nir09", Ratio: 6},
		{Name: "rededge1", Ratio: 2},
		{Name: "rededge2", Ratio: 2},
		{Name: "rededge3", Ratio: 2},
		{Name: "swir16", Ratio: 2},
		{Name: "swir22", Ratio: 2},
	}
	return &Config{
		DatasetDir: ".",
		Table:      "tiles.parquet",
		RasterExt:  "tiff",
		GridSize:   DefaultGridSize,
		Stride:     DefaultStride,
		Workers:    DefaultWorkers,
		Bands:      bands,
		Classification: Classification{
			Name:    "scl",
			Ratio:   2,
			Exclude: append([]int(nil), mask.DefaultExclude...),
		},
	}
}

// BandNames returns the reflectance band names in output order.
func (c *Config) BandNames() []string {
	out := make([]string, len(c.Bands))
	for i, b := range c.Bands {
		out[i] = b.Name
	}
	return out
}

// Required returns every band an acquisition must provide: the reflectance
// bands followed by the classification band.
func (c *Config) Required() []string {
	return append(c.BandNames(), c.Classification.Name)
}

// TileSize is the side length H = W of the decimated output grid.
func (c *Config) TileSize() int {
	return (c.GridSize + c.Stride - 1) / c.Stride
}

// TablePath resolves Table against DatasetDir.
func (c *Config) TablePath() string {
	if filepath.IsAbs(c.Table) {
		return c.Table
	}
	return filepath.Join(c.DatasetDir, c.Table)
}

// OutputDir is where per-tile results are written.
func (c *Config) OutputDir() string {
	return filepath.Join(c.DatasetDir, "processed")
}

// Validate checks the configuration and reports every problem found at once
// as a ConfigError.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.DatasetDir == "" {
		add("dataset_dir must not be empty")
	}
	if c.RasterExt == "" {
		add("raster_ext must not be empty")
	}
	if c.GridSize < 1 {
		add("grid_size must be positive, got %d", c.GridSize)
	}
	if c.Stride < 1 {
		add("stride must be at least 1, got %d", c.Stride)
	}
	if c.Workers < 1 {
		add("workers must be at least 1, got %d", c.Workers)
	}
	if len(c.Bands) == 0 {
		add("at least one band is required")
	}

	checkRatio := func(name string, ratio int) {
		if ratio < 1 {
			add("band %q: ratio must be at least 1, got %d", name, ratio)
			return
		}
		if c.GridSize > 0 && c.GridSize%ratio != 0 {
			add("band %q: ratio %d does not divide grid_size %d", name, ratio, c.GridSize)
		}
	}

	seen := make(map[string]bool)
	for i, b := range c.Bands {
		if b.Name == "" {
			add("band #%d has no name", i)
			continue
		}
		if seen[b.Name] {
			add("band %q is declared twice", b.Name)
		}
		seen[b.Name] = true
		checkRatio(b.Name, b.Ratio)
	}

	cl := c.Classification
	switch {
	case cl.Name == "":
		add("classification band has no name")
	case seen[cl.Name]:
		add("classification band %q is also a reflectance band", cl.Name)
	default:
		checkRatio(cl.Name, cl.Ratio)
	}
	if _, err := mask.NewClassSet(cl.Exclude); err != nil {
		add("classification %q: %v", cl.Name, err)
	}

	if len(errs) > 0 {
		return failure.Config("validate", errors.Join(errs...))
	}
	return nil
}

// Overrides carries command line values that take precedence over the file.
// Zero values leave the file setting untouched.
type Overrides struct {
	DatasetDir string
	Workers    int
	Stride     int
	Baseline   string
}

// Apply copies every non-zero override into c.
func (o Overrides) Apply(c *Config) {
	if o.DatasetDir != "" {
		c.DatasetDir = o.DatasetDir
	}
	if o.Workers != 0 {
		c.Workers = o.Workers
	}
	if o.Stride != 0 {
		c.Stride = o.Stride
	}
	if o.Baseline != "" {
		c.Baseline = o.Baseline
	}
}
