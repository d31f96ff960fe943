// Package executor drives a run: it hands every tile of a catalog view to the
// assembler, sequentially or through a bounded worker pool, and collects the
// per-tile outcomes into a Summary. A failed tile is recorded and the run
// moves on.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/tilestackgo/internal/assemble"
	"github.com/specialistvlad/tilestackgo/internal/catalog"
	"github.com/specialistvlad/tilestackgo/internal/ctxlog"
)

// TileAssembler builds one tile. *assemble.Assembler implements it.
type TileAssembler interface {
	Assemble(ctx context.Context, group *catalog.TileGroup) (assemble.Outcome, error)
}

// Status is the final state of a tile within a run.
type Status int

const (
	StatusCompleted Status = iota
	StatusSkipped
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// TileResult is reported once per tile.
type TileResult struct {
	Code         string
	Index        int
	Total        int
	Acquisitions int
	Status       Status
	Err          error
	Duration     time.Duration
}

// TileFailure names a failed tile and why.
type TileFailure struct {
	Code string
	Err  error
}

// Summary aggregates a run. Failures are in tile order.
type Summary struct {
	Total     int
	Completed int
	Skipped   int
	Failed    int
	Cancelled int
	Failures  []TileFailure
	Duration  time.Duration
}

// OK reports whether every tile was completed or skipped.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.Cancelled == 0
}

// Executor runs tiles. Workers <= 1 processes tiles one after another in view
// order; larger values bound the number of tiles in flight.
type Executor struct {
	Workers   int
	Assembler TileAssembler
	Reporter  Reporter
}

// Run processes every tile of view and returns the summary. Cancelling ctx
// stops dispatching; tiles not yet started are reported as cancelled and
// finished tiles are left as they are.
func (e *Executor) Run(ctx context.Context, view *catalog.View) Summary {
	logger := ctxlog.FromContext(ctx)
	start := time.Now()
	total := len(view.Codes)
	results := make([]TileResult, total)

	if e.Workers <= 1 {
		logger.Info("Starting sequential run.", "tiles", total)
		for i := range view.Codes {
			results[i] = e.runTile(ctx, view, i, 0)
		}
	} else {
		workers := min(e.Workers, max(total, 1))
		logger.Info("Starting concurrent run.", "tiles", total, "workers", workers)

		jobs := make(chan int)
		g, gctx := errgroup.WithContext(ctx)
		for id := 1; id <= workers; id++ {
			g.Go(func() error {
				return e.worker(gctx, view, jobs, results, id)
			})
		}

		next := 0
	dispatch:
		for ; next < total; next++ {
			select {
			case jobs <- next:
			case <-gctx.Done():
				break dispatch
			}
		}
		close(jobs)
		if err := g.Wait(); err != nil {
			logger.Warn("Run interrupted.", "error", err, "undispatched", total-next)
		}
		// Tiles never handed to a worker still get a result.
		for i := next; i < total; i++ {
			results[i] = e.runTile(ctx, view, i, 0)
		}
	}

	sum := Summary{Total: total, Duration: time.Since(start)}
	for _, r := range results {
		switch r.Status {
		case StatusCompleted:
			sum.Completed++
		case StatusSkipped:
			sum.Skipped++
		case StatusFailed:
			sum.Failed++
			sum.Failures = append(sum.Failures, TileFailure{Code: r.Code, Err: r.Err})
		case StatusCancelled:
			sum.Cancelled++
		}
	}
	logger.Info("Run finished.",
		"total", sum.Total, "completed", sum.Completed, "skipped", sum.Skipped,
		"failed", sum.Failed, "cancelled", sum.Cancelled, "duration", sum.Duration)
	return sum
}

func (e *Executor) reporter() Reporter {
	if e.Reporter == nil {
		return nopReporter{}
	}
	return e.Reporter
}

// runTile assembles tile i. A panic inside the assembler fails only that
// tile.
func (e *Executor) runTile(ctx context.Context, view *catalog.View, i, workerID int) (res TileResult) {
	code := view.Codes[i]
	group := view.Group(code)
	res = TileResult{Code: code, Index: i + 1, Total: len(view.Codes), Acquisitions: group.Len()}
	rep := e.reporter()

	if err := ctx.Err(); err != nil {
		res.Status, res.Err = StatusCancelled, err
		rep.TileFinished(res)
		return res
	}

	args := []any{"tile", code}
	if workerID > 0 {
		args = append(args, "workerID", workerID)
	}
	tctx, logger := ctxlog.With(ctx, args...)
	rep.TileStarted(code, res.Index, res.Total)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res.Status, res.Err = StatusFailed, fmt.Errorf("tile %s panicked: %v", code, r)
			logger.Error("Tile panicked.", "panic", r)
		}
		res.Duration = time.Since(start)
		rep.TileFinished(res)
	}()

	outcome, err := e.Assembler.Assemble(tctx, group)
	switch {
	case err == nil && outcome == assemble.Skipped:
		res.Status = StatusSkipped
	case err == nil:
		res.Status = StatusCompleted
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		res.Status, res.Err = StatusCancelled, err
		logger.Warn("Tile cancelled.")
	default:
		res.Status, res.Err = StatusFailed, err
		logger.Error("Tile failed.", "error", err)
	}
	return res
}
