package executor

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Reporter observes tile progress. Implementations must be safe for
// concurrent use.
type Reporter interface {
	TileStarted(code string, index, total int)
	TileFinished(res TileResult)
}

type nopReporter struct{}

func (nopReporter) TileStarted(string, int, int) {}
func (nopReporter) TileFinished(TileResult)      {}

// Multi fans every event out to each reporter in order.
type Multi []Reporter

func (m Multi) TileStarted(code string, index, total int) {
	for _, r := range m {
		r.TileStarted(code, index, total)
	}
}

func (m Multi) TileFinished(res TileResult) {
	for _, r := range m {
		r.TileFinished(res)
	}
}

// LogReporter writes one line per event.
type LogReporter struct {
	Logger *slog.Logger
}

func (l LogReporter) TileStarted(code string, index, total int) {
	l.Logger.Info("Tile started.", "tile", code, "index", index, "total", total)
}

func (l LogReporter) TileFinished(res TileResult) {
	args := []any{
		"tile", res.Code, "status", res.Status.String(),
		"index", res.Index, "total", res.Total,
		"acquisitions", res.Acquisitions, "duration", res.Duration,
	}
	if res.Status == StatusFailed {
		l.Logger.Error("Tile finished.", append(args, "error", res.Err)...)
		return
	}
	l.Logger.Info("Tile finished.", args...)
}

// Progress is a point-in-time view of a Tracker.
type Progress struct {
	Total     int64    `json:"total"`
	Started   int64    `json:"started"`
	Completed int64    `json:"completed"`
	Skipped   int64    `json:"skipped"`
	Failed    int64    `json:"failed"`
	Cancelled int64    `json:"cancelled"`
	InFlight  []string `json:"in_flight"`
}

// Done is the number of tiles with a final status.
func (p Progress) Done() int64 {
	return p.Completed + p.Skipped + p.Failed + p.Cancelled
}

// Tracker counts tile events with atomic counters so it can be read while
// workers are running.
type Tracker struct {
	total, started                        atomic.Int64
	completed, skipped, failed, cancelled atomic.Int64

	mu       sync.Mutex
	inFlight map[string]time.Time
}

// NewTracker returns a tracker expecting total tiles.
func NewTracker(total int) *Tracker {
	t := &Tracker{inFlight: make(map[string]time.Time)}
	t.total.Store(int64(total))
	return t
}

func (t *Tracker) TileStarted(code string, _, total int) {
	t.total.Store(int64(total))
	t.started.Add(1)
	t.mu.Lock()
	t.inFlight[code] = time.Now()
	t.mu.Unlock()
}

func (t *Tracker) TileFinished(res TileResult) {
	switch res.Status {
	case StatusCompleted:
		t.completed.Add(1)
	case StatusSkipped:
		t.skipped.Add(1)
	case StatusFailed:
		t.failed.Add(1)
	case StatusCancelled:
		t.cancelled.Add(1)
	}
	t.mu.Lock()
	delete(t.inFlight, res.Code)
	t.mu.Unlock()
}

// Snapshot returns the current counters and the tiles in flight, sorted.
func (t *Tracker) Snapshot() Progress {
	p := Progress{
		Total:     t.total.Load(),
		Started:   t.started.Load(),
		Completed: t.completed.Load(),
		Skipped:   t.skipped.Load(),
		Failed:    t.failed.Load(),
		Cancelled: t.cancelled.Load(),
		InFlight:  []string{},
	}
	t.mu.Lock()
	for code := range t.inFlight {
		p.InFlight = append(p.InFlight, code)
	}
	t.mu.Unlock()
	sort.Strings(p.InFlight)
	return p
}
