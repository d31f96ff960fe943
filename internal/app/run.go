package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/specialistvlad/tilestackgo/internal/assemble"
	"github.com/specialistvlad/tilestackgo/internal/catalog"
	"github.com/specialistvlad/tilestackgo/internal/ctxlog"
	"github.com/specialistvlad/tilestackgo/internal/executor"
	"github.com/specialistvlad/tilestackgo/internal/report"
	"github.com/specialistvlad/tilestackgo/internal/tilestore"
)

// Run assembles every tile of the acquisition table and writes the summary
// table. The returned error is reserved for problems that prevent the run
// from starting; per-tile failures are only reported in the Summary.
func (a *App) Run(ctx context.Context) (executor.Summary, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.ctx = ctx
	cfg := a.pipeline
	a.logger.Debug("App.Run method started.")

	records, err := catalog.ReadTable(ctx, cfg.TablePath())
	if err != nil {
		return executor.Summary{}, err
	}
	view, err := catalog.BuildView(records, catalog.Options{Required: cfg.Required(), Baseline: cfg.Baseline})
	if err != nil {
		return executor.Summary{}, err
	}
	for _, d := range view.Dropped {
		a.logger.Warn("Acquisition dropped.", "id", d.ID, "reason", d.Reason)
	}
	for _, s := range view.Skipped {
		a.logger.Info("Acquisition skipped.", "id", s.ID, "reason", s.Reason)
	}
	a.logger.Info("Catalog loaded.", "records", len(records), "tiles", len(view.Codes), "acquisitions", view.Acquisitions())

	store := tilestore.New(cfg.OutputDir())
	if n, err := store.Sweep(); err != nil {
		return executor.Summary{}, fmt.Errorf("clean staging directories: %w", err)
	} else if n > 0 {
		a.logger.Info("Removed leftover staging directories.", "count", n)
	}

	src := assemble.FileSource{Dir: cfg.DatasetDir, Ext: cfg.RasterExt}
	asm, err := assemble.New(cfg, src, store)
	if err != nil {
		return executor.Summary{}, err
	}

	a.tracker = executor.NewTracker(len(view.Codes))
	if a.settings.HealthcheckPort > 0 {
		if err := a.healthCheckServer(); err != nil {
			return executor.Summary{}, err
		}
		defer a.closeHealthCheckServer()
	}

	exec := &executor.Executor{
		Workers:   cfg.Workers,
		Assembler: asm,
		Reporter:  executor.Multi{executor.LogReporter{Logger: a.logger}, a.tracker},
	}
	sum := exec.Run(ctx, view)

	if err := report.Summary(a.outW, sum, a.settings.ReportMode); err != nil {
		return sum, err
	}
	a.logger.Debug("App.Run method finished.")
	return sum, nil
}

// Verify checks every committed tile against its manifest and writes one row
// per tile. It returns the number of corrupt tiles.
func (a *App) Verify(ctx context.Context) (int, error) {
	store := tilestore.New(a.pipeline.OutputDir())
	tiles, err := store.Tiles()
	if err != nil {
		return 0, err
	}

	results := make([]report.VerifyResult, 0, len(tiles))
	bad := 0
	for _, tile := range tiles {
		if err := ctx.Err(); err != nil {
			return bad, err
		}
		err := store.Verify(tile)
		if err != nil {
			bad++
			a.logger.Error("Tile verification failed.", "tile", tile, "error", err)
		}
		results = append(results, report.VerifyResult{Tile: tile, Err: err})
	}
	if err := report.Verify(a.outW, results, a.settings.ReportMode); err != nil {
		return bad, err
	}
	return bad, nil
}

// Convert reads the STAC items in dir and writes them as the acquisition
// table at dir/tiles.parquet. It returns the table path and the number of
// rows written.
func Convert(ctx context.Context, dir string) (string, int, error) {
	logger := ctxlog.FromContext(ctx)

	records, err := catalog.ReadItems(dir)
	if err != nil {
		return "", 0, err
	}
	bands := catalog.Bands(records)
	out := filepath.Join(dir, catalog.TableFile)
	if err := catalog.WriteTable(out, records, bands); err != nil {
		return "", 0, fmt.Errorf("write %s: %w", out, err)
	}
	logger.Info("Acquisition table written.", "path", out, "rows", len(records), "bands", len(bands))
	return out, len(records), nil
}
