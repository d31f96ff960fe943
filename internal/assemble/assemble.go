// Package assemble turns one tile group into its stacked band, mask and
// day-of-year arrays.
//
// Acquisitions are processed strictly in group order. For each one the
// classification band seeds the validity mask, every reflectance band is
// upsampled to the target grid, its no-data pixels are removed from the mask,
// and both are decimated by the configured stride. Any failure aborts the
// tile before anything is written.
package assemble

import (
	"context"
	"fmt"

	"github.com/specialistvlad/tilestackgo/internal/catalog"
	"github.com/specialistvlad/tilestackgo/internal/config"
	"github.com/specialistvlad/tilestackgo/internal/ctxlog"
	"github.com/specialistvlad/tilestackgo/internal/downsample"
	"github.com/specialistvlad/tilestackgo/internal/failure"
	"github.com/specialistvlad/tilestackgo/internal/mask"
	"github.com/specialistvlad/tilestackgo/internal/raster"
	"github.com/specialistvlad/tilestackgo/internal/resample"
	"github.com/specialistvlad/tilestackgo/internal/tilestore"
)

// Outcome is the result of a tile that did not fail.
type Outcome int

const (
	Completed Outcome = iota
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Row is one processed acquisition at output resolution.
type Row struct {
	Bands     []raster.Grid[uint16]
	Mask      raster.Grid[uint8]
	DayOfYear uint16
}

// Assembler processes tile groups. It holds no per-tile state and may be
// shared by concurrent workers as long as the Source is safe for concurrent
// use.
type Assembler struct {
	cfg     *config.Config
	src     Source
	store   *tilestore.Store
	exclude mask.ClassSet
}

// New creates an assembler. An invalid configuration or a missing source or
// store is a ConfigError.
func New(cfg *config.Config, src Source, store *tilestore.Store) (*Assembler, error) {
	switch {
	case cfg == nil:
		return nil, failure.Configf("assembler", "no configuration")
	case src == nil:
		return nil, failure.Configf("assembler", "no raster source")
	case store == nil:
		return nil, failure.Configf("assembler", "no tile store")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	exclude, err := mask.NewClassSet(cfg.Classification.Exclude)
	if err != nil {
		return nil, failure.Config("assembler", err)
	}
	return &Assembler{cfg: cfg, src: src, store: store, exclude: exclude}, nil
}

// Assemble builds and commits the arrays for group. A tile whose bands.npy
// already exists is skipped without reading any raster.
func (a *Assembler) Assemble(ctx context.Context, group *catalog.TileGroup) (Outcome, error) {
	logger := ctxlog.FromContext(ctx)

	done, err := a.store.Done(group.Code)
	if err != nil {
		return Completed, failure.InTile(group.Code, err)
	}
	if done {
		logger.Info("Tile already processed, skipping.", "tile", group.Code)
		return Skipped, nil
	}

	n, size := group.Len(), a.cfg.TileSize()
	ds := tilestore.NewDataset(n, size, size, len(a.cfg.Bands))
	records := make([]tilestore.Record, 0, n)

	for i, acq := range group.Acquisitions {
		if err := ctx.Err(); err != nil {
			return Completed, err
		}
		row, err := a.Process(acq)
		if err != nil {
			return Completed, failure.InTile(group.Code, err)
		}
		if err := ds.SetRow(i, row.Bands, row.Mask, row.DayOfYear); err != nil {
			return Completed, failure.InTile(group.Code, failure.Data(acq.ID, "", err))
		}
		records = append(records, tilestore.Record{
			TileCode:  group.Code,
			ID:        acq.ID,
			Timestamp: acq.Timestamp.UTC(),
			DayOfYear: row.DayOfYear,
			Baseline:  acq.Baseline,
			Assets:    acq.Assets,
		})
		logger.Debug("Acquisition processed.", "tile", group.Code, "id", acq.ID, "index", i+1, "of", n)
	}

	if err := a.store.Commit(ctx, group.Code, ds, records, a.cfg.BandNames()); err != nil {
		if ctx.Err() != nil {
			return Completed, ctx.Err()
		}
		return Completed, failure.InTile(group.Code, err)
	}
	logger.Info("Tile written.", "tile", group.Code, "acquisitions", n, "size", fmt.Sprintf("%dx%d", size, size))
	return Completed, nil
}

// Process transforms one acquisition into its output row. It has no side
// effects beyond reading from the Source.
func (a *Assembler) Process(acq catalog.Acquisition) (*Row, error) {
	cl := a.cfg.Classification
	scl, err := a.read(cl.Name, cl.Ratio, acq.ID)
	if err != nil {
		return nil, err
	}
	mb := mask.NewBuilder(scl.Grid, cl.Ratio, a.exclude)

	row := &Row{
		Bands:     make([]raster.Grid[uint16], len(a.cfg.Bands)),
		DayOfYear: acq.DayOfYear(),
	}
	for i, band := range a.cfg.Bands {
		r, err := a.read(band.Name, band.Ratio, acq.ID)
		if err != nil {
			return nil, err
		}
		sentinel, ok := r.Sentinel(band.NoData)
		if !ok {
			return nil, failure.Data(acq.ID, band.Name, raster.ErrNoData)
		}
		up, nodata := resample.Band(r.Grid, band.Ratio, sentinel)
		if err := mb.Exclude(nodata); err != nil {
			return nil, failure.Data(acq.ID, band.Name, err)
		}
		row.Bands[i] = downsample.Decimate(up, a.cfg.Stride)
	}
	row.Mask = mask.Bytes(downsample.Decimate(mb.Mask(), a.cfg.Stride))
	return row, nil
}

func (a *Assembler) read(band string, ratio int, id string) (*raster.Band, error) {
	r, err := a.src.Read(band, id)
	if err != nil {
		return nil, failure.Data(id, band, err)
	}
	if err := resample.CheckGrid(r.Grid, ratio, a.cfg.GridSize); err != nil {
		return nil, failure.Data(id, band, err)
	}
	return r, nil
}
