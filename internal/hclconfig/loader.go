// Package hclconfig loads the run configuration from HCL files.
//
// A configuration looks like:
//
//	dataset_dir = env.TILESTACK_DATA
//	stride      = 10
//	workers     = 4
//
//	classification "scl" {
//	  ratio   = 2
//	  exclude = [0, 1, 2, 3, 8, 9]
//	}
//
//	band "red" {
//	  ratio  = 1
//	  nodata = 0
//	}
//
// Every attribute is optional and falls back to config.Default. Declaring any
// band block replaces the default band list. Expressions can read the process
// environment through env.<NAME> and call upper, lower, format, min and max.
package hclconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/specialistvlad/tilestackgo/internal/config"
	"github.com/specialistvlad/tilestackgo/internal/ctxlog"
	"github.com/specialistvlad/tilestackgo/internal/failure"
	"github.com/specialistvlad/tilestackgo/internal/fsutil"
)

// Loader is the HCL implementation of config.Loader.
type Loader struct {
	// Env is exposed to expressions as the env object, in os.Environ form.
	Env []string
}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a loader that sees the current process environment.
func NewLoader() *Loader {
	return &Loader{Env: os.Environ()}
}

// fileRoot decodes every top-level item a file may contain.
type fileRoot struct {
	DatasetDir     *string                `hcl:"dataset_dir,optional"`
	Table          *string                `hcl:"table,optional"`
	RasterExt      *string                `hcl:"raster_ext,optional"`
	GridSize       *int                   `hcl:"grid_size,optional"`
	Stride         *int                   `hcl:"stride,optional"`
	Workers        *int                   `hcl:"workers,optional"`
	Baseline       *string                `hcl:"processing_baseline,optional"`
	Classification []*classificationBlock `hcl:"classification,block"`
	Bands          []*bandBlock           `hcl:"band,block"`
}

type classificationBlock struct {
	Name     string    `hcl:"name,label"`
	Ratio    *int      `hcl:"ratio,optional"`
	Exclude  []int     `hcl:"exclude,optional"`
	DefRange hcl.Range `hcl:",def_range"`
}

type bandBlock struct {
	Name     string    `hcl:"name,label"`
	Ratio    int       `hcl:"ratio"`
	NoData   *int      `hcl:"nodata,optional"`
	DefRange hcl.Range `hcl:",def_range"`
}

// Load parses every .hcl file found under paths, in order, and overlays them
// onto config.Default. Later files win for plain attributes.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Config, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := findAllHCLFiles(paths)
	if err != nil {
		return nil, failure.Config("load hcl", err)
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	cfg := config.Default()
	parser := hclparse.NewParser()
	evalCtx := l.evalContext()

	var (
		diags          hcl.Diagnostics
		bands          []*bandBlock
		classification []*classificationBlock
	)
	for _, file := range files {
		hclFile, parseDiags := parser.ParseHCLFile(file)
		diags = append(diags, parseDiags...)
		if parseDiags.HasErrors() {
			continue
		}

		var root fileRoot
		decodeDiags := gohcl.DecodeBody(hclFile.Body, evalCtx, &root)
		diags = append(diags, decodeDiags...)
		if decodeDiags.HasErrors() {
			continue
		}

		root.apply(cfg)
		bands = append(bands, root.Bands...)
		classification = append(classification, root.Classification...)
	}

	diags = append(diags, duplicateLabels(bands)...)
	cl, clDiags := findUniqueClassification(classification)
	diags = append(diags, clDiags...)

	if len(bands) > 0 {
		cfg.Bands = cfg.Bands[:0]
		for _, b := range bands {
			band, bandDiags := b.toBand()
			diags = append(diags, bandDiags...)
			cfg.Bands = append(cfg.Bands, band)
		}
	}
	if cl != nil {
		cl.apply(&cfg.Classification)
	}

	if diags.HasErrors() {
		return nil, failure.Config("load hcl", diags)
	}

	logger.Debug("HCL loading complete.", "files", len(files), "bands", len(cfg.Bands))
	return cfg, nil
}

func (r *fileRoot) apply(cfg *config.Config) {
	if r.DatasetDir != nil {
		cfg.DatasetDir = *r.DatasetDir
	}
	if r.Table != nil {
		cfg.Table = *r.Table
	}
	if r.RasterExt != nil {
		cfg.RasterExt = strings.TrimPrefix(*r.RasterExt, ".")
	}
	if r.GridSize != nil {
		cfg.GridSize = *r.GridSize
	}
	if r.Stride != nil {
		cfg.Stride = *r.Stride
	}
	if r.Workers != nil {
		cfg.Workers = *r.Workers
	}
	if r.Baseline != nil {
		cfg.Baseline = *r.Baseline
	}
}

func (b *bandBlock) toBand() (config.Band, hcl.Diagnostics) {
	band := config.Band{Name: b.Name, Ratio: b.Ratio}
	if b.NoData == nil {
		return band, nil
	}
	if *b.NoData < 0 || *b.NoData > 0xffff {
		return band, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid nodata value",
			Detail:   fmt.Sprintf("Band %q: nodata %d does not fit an unsigned 16-bit pixel.", b.Name, *b.NoData),
			Subject:  b.DefRange.Ptr(),
		}}
	}
	v := uint16(*b.NoData)
	band.NoData = &v
	return band, nil
}

func (c *classificationBlock) apply(dst *config.Classification) {
	dst.Name = c.Name
	if c.Ratio != nil {
		dst.Ratio = *c.Ratio
	}
	if c.Exclude != nil {
		dst.Exclude = c.Exclude
	}
}

// duplicateLabels reports every band block whose label was already used.
func duplicateLabels(blocks []*bandBlock) hcl.Diagnostics {
	var diags hcl.Diagnostics
	first := make(map[string]*bandBlock)
	for _, b := range blocks {
		prev, ok := first[b.Name]
		if !ok {
			first[b.Name] = b
			continue
		}
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Duplicate \"band\" block",
			Detail:   fmt.Sprintf("A band named %q was already declared at %s.", b.Name, prev.DefRange),
			Subject:  b.DefRange.Ptr(),
		})
	}
	return diags
}

// findUniqueClassification returns the single classification block, if any,
// and a diagnostic for each extra one.
func findUniqueClassification(blocks []*classificationBlock) (*classificationBlock, hcl.Diagnostics) {
	var found *classificationBlock
	var diags hcl.Diagnostics

	for _, block := range blocks {
		if found != nil {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate \"classification\" block",
				Detail:   "Only one \"classification\" block is allowed.",
				Subject:  block.DefRange.Ptr(),
			})
			continue
		}
		found = block
	}
	return found, diags
}

func (l *Loader) evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value, len(l.Env))
	for _, kv := range l.Env {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		env[name] = cty.StringVal(value)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(env),
		},
		Functions: map[string]function.Function{
			"upper":  stdlib.UpperFunc,
			"lower":  stdlib.LowerFunc,
			"format": stdlib.FormatFunc,
			"min":    stdlib.MinFunc,
			"max":    stdlib.MaxFunc,
		},
	}
}

// findAllHCLFiles expands paths into a flat, de-duplicated list of .hcl
// files. Directories are searched recursively.
func findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if info.IsDir() {
			found, err := fsutil.FindFilesByExtension(path, ".hcl", true)
			if err != nil {
				return nil, err
			}
			for _, p := range found {
				add(p)
			}
		} else if filepath.Ext(path) == ".hcl" {
			add(path)
		} else {
			return nil, fmt.Errorf("%s is not an .hcl file", path)
		}
	}
	return allFiles, nil
}
