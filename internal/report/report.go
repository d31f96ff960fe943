// Package report renders run and verification results as terminal or
// Markdown tables.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/specialistvlad/tilestackgo/internal/executor"
)

// Mode controls the output format.
type Mode int

const (
	ASCII    Mode = iota // Fixed-width terminal tables
	Markdown             // GitHub-flavoured Markdown tables
)

func newWriter(m Mode) table.Writer {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(table.StyleLight)
	}
	return w
}

func render(w io.Writer, tw table.Writer, m Mode) error {
	var out string
	if m == Markdown {
		out = tw.RenderMarkdown()
	} else {
		out = tw.Render()
	}
	_, err := fmt.Fprintln(w, out)
	return err
}

// Summary writes the counts of a run followed by one row per failed tile.
func Summary(w io.Writer, sum executor.Summary, m Mode) error {
	tw := newWriter(m)
	tw.AppendHeader(table.Row{"Status", "Tiles"})
	tw.AppendRows([]table.Row{
		{"completed", sum.Completed},
		{"skipped", sum.Skipped},
		{"failed", sum.Failed},
		{"cancelled", sum.Cancelled},
	})
	tw.AppendFooter(table.Row{"total", sum.Total})
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight}})
	tw.SetCaption("finished in %s", sum.Duration.Round(time.Millisecond))
	if err := render(w, tw, m); err != nil {
		return err
	}

	if len(sum.Failures) == 0 {
		return nil
	}
	fw := newWriter(m)
	fw.AppendHeader(table.Row{"Tile", "Reason"})
	for _, f := range sum.Failures {
		fw.AppendRow(table.Row{f.Code, f.Err.Error()})
	}
	fw.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: 100}})
	return render(w, fw, m)
}

// VerifyResult is the outcome of checking one tile against its manifest.
type VerifyResult struct {
	Tile string
	Err  error
}

// Verify writes one row per checked tile.
func Verify(w io.Writer, results []VerifyResult, m Mode) error {
	tw := newWriter(m)
	tw.AppendHeader(table.Row{"Tile", "Status", "Detail"})
	bad := 0
	for _, r := range results {
		status, detail := "ok", ""
		if r.Err != nil {
			status, detail = "corrupt", r.Err.Error()
			bad++
		}
		tw.AppendRow(table.Row{r.Tile, status, detail})
	}
	tw.AppendFooter(table.Row{"total", len(results), fmt.Sprintf("%d corrupt", bad)})
	tw.SetColumnConfigs([]table.ColumnConfig{{Number: 3, WidthMax: 100}})
	return render(w, tw, m)
}
