// Package catalog turns the flat acquisition table into per-tile groups.
//
// A View is built once per run before any tile is processed. Records without a
// tile code or timestamp are dropped with a reason, records of another
// processing baseline are skipped, and every surviving record must carry an
// asset for each band the pipeline reads.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/specialistvlad/tilestackgo/internal/failure"
	"github.com/specialistvlad/tilestackgo/internal/fsutil"
)

// Acquisition is one satellite scene over one tile. Assets maps a band name to
// the location the retrieval step downloaded it from.
type Acquisition struct {
	ID        string
	TileCode  string
	Timestamp time.Time
	Baseline  string
	Assets    map[string]string
}

// DayOfYear returns the ordinal day of the UTC acquisition date, in [1, 366].
func (a Acquisition) DayOfYear() uint16 {
	return uint16(a.Timestamp.UTC().YearDay())
}

// TileGroup is the time-ordered list of acquisitions sharing a tile code.
type TileGroup struct {
	Code         string
	Acquisitions []Acquisition
}

// Len returns the number of acquisitions, N in the assembled arrays.
func (g *TileGroup) Len() int { return len(g.Acquisitions) }

// Options controls how records are admitted into the view.
type Options struct {
	// Required lists every band that must have an asset entry.
	Required []string
	// Baseline, when set, keeps only acquisitions of that processing baseline.
	Baseline string
}

// View is the grouped catalog handed to the run driver.
type View struct {
	Groups map[string]*TileGroup
	// Codes holds the tile codes in ascending order, the order tiles are run.
	Codes []string
	// Dropped lists malformed records, Skipped the ones filtered by baseline.
	Dropped []failure.Skipped
	Skipped []failure.Skipped
}

// Group returns the group for code, or nil.
func (v *View) Group(code string) *TileGroup {
	return v.Groups[code]
}

// Acquisitions returns the number of grouped acquisitions over all tiles.
func (v *View) Acquisitions() int {
	n := 0
	for _, g := range v.Groups {
		n += g.Len()
	}
	return n
}

// BuildView groups records by tile code. Within a group acquisitions are
// ordered by timestamp, ties broken by id. A record missing a required band
// asset yields a ConfigError.
func BuildView(records []Acquisition, opts Options) (*View, error) {
	v := &View{Groups: make(map[string]*TileGroup)}
	seen := make(map[string]struct{})

	for i, rec := range records {
		label := rec.ID
		if label == "" {
			label = fmt.Sprintf("record #%d", i)
		}

		switch {
		case strings.TrimSpace(rec.TileCode) == "":
			v.Dropped = append(v.Dropped, failure.Skipped{ID: label, Reason: "missing tile code"})
			continue
		case !fsutil.IsPathComponent(rec.TileCode) || strings.HasPrefix(rec.TileCode, "."):
			v.Dropped = append(v.Dropped, failure.Skipped{ID: label, Reason: fmt.Sprintf("tile code %q is not a valid directory name", rec.TileCode)})
			continue
		case rec.Timestamp.IsZero():
			v.Dropped = append(v.Dropped, failure.Skipped{ID: label, Reason: "missing timestamp"})
			continue
		case rec.ID == "":
			v.Dropped = append(v.Dropped, failure.Skipped{ID: label, Reason: "missing id"})
			continue
		}

		if opts.Baseline != "" && rec.Baseline != opts.Baseline {
			v.Skipped = append(v.Skipped, failure.Skipped{
				ID:     rec.ID,
				Reason: fmt.Sprintf("processing baseline %q, want %q", rec.Baseline, opts.Baseline),
			})
			continue
		}

		for _, band := range opts.Required {
			if rec.Assets[band] == "" {
				return nil, failure.Configf("build catalog view", "acquisition %s has no asset for band %q", rec.ID, band)
			}
		}

		key := rec.TileCode + "/" + rec.ID
		if _, dup := seen[key]; dup {
			v.Dropped = append(v.Dropped, failure.Skipped{ID: rec.ID, Reason: "duplicate id in tile " + rec.TileCode})
			continue
		}
		seen[key] = struct{}{}

		g, ok := v.Groups[rec.TileCode]
		if !ok {
			g = &TileGroup{Code: rec.TileCode}
			v.Groups[rec.TileCode] = g
			v.Codes = append(v.Codes, rec.TileCode)
		}
		g.Acquisitions = append(g.Acquisitions, rec)
	}

	for _, g := range v.Groups {
		sort.SliceStable(g.Acquisitions, func(i, j int) bool {
			a, b := g.Acquisitions[i], g.Acquisitions[j]
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.ID < b.ID
		})
	}
	sort.Strings(v.Codes)
	return v, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts ISO-8601 timestamps with or without a zone. A missing
// zone means UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
