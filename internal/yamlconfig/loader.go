// Package yamlconfig loads the run configuration from YAML files. It accepts
// the same settings as the HCL loader:
//
//	dataset_dir: ${TILESTACK_DATA}
//	stride: 10
//	classification: {name: scl, ratio: 2, exclude: [0, 1, 2, 3, 8, 9]}
//	bands:
//	  - {name: red, ratio: 1, nodata: 0}
//
// ${NAME} references in path settings are expanded from the environment.
package yamlconfig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/specialistvlad/tilestackgo/internal/config"
	"github.com/specialistvlad/tilestackgo/internal/ctxlog"
	"github.com/specialistvlad/tilestackgo/internal/failure"
	"github.com/specialistvlad/tilestackgo/internal/fsutil"
)

// Loader is the YAML implementation of config.Loader.
type Loader struct {
	// Env resolves ${NAME} references, in os.Environ form.
	Env []string
}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a loader that sees the current process environment.
func NewLoader() *Loader {
	return &Loader{Env: os.Environ()}
}

type document struct {
	DatasetDir     *string         `yaml:"dataset_dir"`
	Table          *string         `yaml:"table"`
	RasterExt      *string         `yaml:"raster_ext"`
	GridSize       *int            `yaml:"grid_size"`
	Stride         *int            `yaml:"stride"`
	Workers        *int            `yaml:"workers"`
	Baseline       *string         `yaml:"processing_baseline"`
	Classification *classification `yaml:"classification"`
	Bands          []band          `yaml:"bands"`
}

type classification struct {
	Name    string `yaml:"name"`
	Ratio   *int   `yaml:"ratio"`
	Exclude []int  `yaml:"exclude"`
}

type band struct {
	Name   string  `yaml:"name"`
	Ratio  int     `yaml:"ratio"`
	NoData *uint16 `yaml:"nodata"`
}

// Load reads every .yaml or .yml file found under paths, in order, and
// overlays it onto config.Default.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Config, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := findYAMLFiles(paths)
	if err != nil {
		return nil, failure.Config("load yaml", err)
	}
	logger.Debug("Discovered YAML files.", "count", len(files))

	cfg := config.Default()
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, failure.Config("load yaml", err)
		}

		var doc document
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, failure.Config("load yaml", fmt.Errorf("%s: %w", file, err))
		}
		l.apply(&doc, cfg)
	}

	logger.Debug("YAML loading complete.", "files", len(files), "bands", len(cfg.Bands))
	return cfg, nil
}

func (l *Loader) apply(doc *document, cfg *config.Config) {
	if doc.DatasetDir != nil {
		cfg.DatasetDir = l.expand(*doc.DatasetDir)
	}
	if doc.Table != nil {
		cfg.Table = l.expand(*doc.Table)
	}
	if doc.RasterExt != nil {
		cfg.RasterExt = strings.TrimPrefix(*doc.RasterExt, ".")
	}
	if doc.GridSize != nil {
		cfg.GridSize = *doc.GridSize
	}
	if doc.Stride != nil {
		cfg.Stride = *doc.Stride
	}
	if doc.Workers != nil {
		cfg.Workers = *doc.Workers
	}
	if doc.Baseline != nil {
		cfg.Baseline = *doc.Baseline
	}
	if c := doc.Classification; c != nil {
		if c.Name != "" {
			cfg.Classification.Name = c.Name
		}
		if c.Ratio != nil {
			cfg.Classification.Ratio = *c.Ratio
		}
		if c.Exclude != nil {
			cfg.Classification.Exclude = c.Exclude
		}
	}
	if doc.Bands != nil {
		cfg.Bands = make([]config.Band, len(doc.Bands))
		for i, b := range doc.Bands {
			cfg.Bands[i] = config.Band{Name: b.Name, Ratio: b.Ratio, NoData: b.NoData}
		}
	}
}

func (l *Loader) expand(s string) string {
	return os.Expand(s, func(name string) string {
		for _, kv := range l.Env {
			if k, v, ok := strings.Cut(kv, "="); ok && k == name {
				return v
			}
		}
		return ""
	})
}

func isYAML(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}

func findYAMLFiles(paths []string) ([]string, error) {
	var out []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			if !isYAML(path) {
				return nil, fmt.Errorf("%s is not a YAML file", path)
			}
			out = append(out, path)
			continue
		}
		for _, ext := range []string{".yaml", ".yml"} {
			found, err := fsutil.FindFilesByExtension(path, ext, true)
			if err != nil {
				return nil, err
			}
			out = append(out, found...)
		}
	}
	return out, nil
}

// IsYAML reports whether path should be handled by this package rather than
// the HCL loader.
func IsYAML(path string) bool {
	return isYAML(path)
}
