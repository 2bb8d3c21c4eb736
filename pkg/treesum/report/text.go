package report

import (
	"bufio"
	"fmt"
	"io"

	"github.com/jamesainslie/treesum/pkg/treesum/engine"
)

// TextReporter writes plain text. It depends on nothing but the writer and
// is the fallback for every other format.
type TextReporter struct {
	// Limit caps the paths listed per category. Zero lists them all.
	Limit int
}

// Extension implements Reporter.
func (r *TextReporter) Extension() string { return ".txt" }

// Render implements Reporter.
func (r *TextReporter) Render(w io.Writer, d *engine.DiffResult, meta Metadata) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "treesum verification report")
	fmt.Fprintf(bw, "Scanned:   %s\n", meta.ScannedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(bw, "Root:      %s\n", meta.Root)
	fmt.Fprintf(bw, "Manifest:  %s\n", meta.ManifestPath)
	fmt.Fprintf(bw, "Algorithm: %s\n", meta.Algorithm)
	fmt.Fprintf(bw, "Status:    %s\n", d.Status())
	if d.Aborted {
		fmt.Fprintln(bw, "Compare was aborted before every entry was checked.")
	}
	fmt.Fprintln(bw)

	for _, row := range summaryRows(d) {
		fmt.Fprintf(bw, "%-18s %d\n", row.Label+":", row.Count)
	}

	for _, c := range categories(d) {
		if len(c.Paths) == 0 {
			continue
		}
		fmt.Fprintf(bw, "\n%s (%d):\n", c.Title, len(c.Paths))
		shown, more := head(c.Paths, r.Limit)
		for _, p := range shown {
			if cause, ok := d.Errors[p]; ok && c.Key == "errored" {
				fmt.Fprintf(bw, "  - %s: %s\n", p, cause)
				continue
			}
			fmt.Fprintf(bw, "  - %s\n", p)
		}
		if more > 0 {
			fmt.Fprintf(bw, "  ... %d more\n", more)
		}
	}
	return bw.Flush()
}

func init() {
	Register("text", func() Reporter {
		return &TextReporter{Limit: ListLimit}
	})
}

// Ensure TextReporter implements Reporter.
var _ Reporter = (*TextReporter)(nil)
