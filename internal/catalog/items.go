package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/specialistvlad/tilestackgo/internal/failure"
	"github.com/specialistvlad/tilestackgo/internal/fsutil"
)

// item is the subset of a STAC item the retrieval step writes per scene.
type item struct {
	ID         string `json:"id"`
	Properties struct {
		Datetime string `json:"datetime"`
		GridCode string `json:"grid:code"`
		MGRSTile string `json:"s2:mgrs_tile"`
		Baseline string `json:"s2:processing_baseline"`
	} `json:"properties"`
	Assets map[string]struct {
		Href string `json:"href"`
	} `json:"assets"`
}

// ReadItems loads every *.json STAC item directly inside dir, in file name
// order. A file that cannot be read or decoded is a ConfigError; an item with
// a missing field is returned as is and later dropped by BuildView.
func ReadItems(dir string) ([]Acquisition, error) {
	paths, err := fsutil.FindFilesByExtension(dir, ".json", false)
	if err != nil {
		return nil, failure.Config("read items", err)
	}

	out := make([]Acquisition, 0, len(paths))
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, failure.Config("read items", err)
		}
		var it item
		if err := json.Unmarshal(raw, &it); err != nil {
			return nil, failure.Config("read items", fmt.Errorf("%s: %w", p, err))
		}
		acq, err := it.acquisition()
		if err != nil {
			return nil, failure.Config("read items", fmt.Errorf("%s: %w", p, err))
		}
		out = append(out, acq)
	}
	return out, nil
}

func (it item) acquisition() (Acquisition, error) {
	ts, err := ParseTimestamp(it.Properties.Datetime)
	if err != nil {
		return Acquisition{}, err
	}

	code := strings.TrimPrefix(it.Properties.GridCode, "MGRS-")
	if code == "" {
		code = it.Properties.MGRSTile
	}

	assets := make(map[string]string, len(it.Assets))
	for name, a := range it.Assets {
		if a.Href != "" {
			assets[name] = a.Href
		}
	}
	return Acquisition{
		ID:        it.ID,
		TileCode:  code,
		Timestamp: ts,
		Baseline:  it.Properties.Baseline,
		Assets:    assets,
	}, nil
}
