package executor

import (
	"context"

	"github.com/specialistvlad/tilestackgo/internal/catalog"
	"github.com/specialistvlad/tilestackgo/internal/ctxlog"
)

// worker is the processing loop for a single concurrent worker. Each index
// received on jobs is handled by exactly this worker and its result slot is
// written by no one else. Tile errors are recorded in results; the returned
// error is the context's, set when the run was cancelled.
func (e *Executor) worker(ctx context.Context, view *catalog.View, jobs <-chan int, results []TileResult, workerID int) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for i := range jobs {
		results[i] = e.runTile(ctx, view, i, workerID)
	}
	logger.Debug("Worker finished.", "workerID", workerID)
	return ctx.Err()
}
