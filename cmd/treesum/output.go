package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jamesainslie/treesum/pkg/treesum/engine"
	"github.com/jamesainslie/treesum/pkg/treesum/report"
)

// cliDetailLimit caps the paths printed per category on the terminal.
const cliDetailLimit = 10

// lineSink prints unreadable files as they are found and, in verbose mode,
// every processed file.
type lineSink struct {
	out     io.Writer
	errOut  io.Writer
	verbose bool
	quiet   bool
}

func newLineSink() *lineSink {
	return &lineSink{out: os.Stderr, errOut: os.Stderr, verbose: getVerbose(), quiet: getQuiet()}
}

// Emit implements engine.Sink.
func (s *lineSink) Emit(e engine.Event) {
	switch e.Kind {
	case engine.KindError:
		if !s.quiet {
			fmt.Fprintf(s.errOut, "warning: %s: %v\n", e.Path, e.Err)
		}
	case engine.KindFile:
		if s.verbose && !s.quiet {
			fmt.Fprintf(s.out, "[%d/%d] %-18s %s\n", e.Index, e.Total, e.Status, e.Path)
		}
	}
}

// reporterFor returns the stdout renderer for an --output format.
// Terminal formats list at most cliDetailLimit paths per category.
func reporterFor(format string) (report.Reporter, error) {
	switch format {
	case "", "pretty":
		return &report.PrettyReporter{Limit: cliDetailLimit}, nil
	case "text":
		return &report.TextReporter{Limit: cliDetailLimit}, nil
	}
	r, err := report.Get(format)
	if err != nil {
		return nil, fmt.Errorf("unknown output format %q: available formats are %v", format, report.Available())
	}
	return r, nil
}

// printDiff renders the compare result to w.
func printDiff(w io.Writer, format string, res *engine.CompareResult, root string) error {
	r, err := reporterFor(format)
	if err != nil {
		return err
	}
	meta := report.Metadata{
		Tool:         toolName(),
		Root:         root,
		ManifestPath: res.ManifestPath,
		Algorithm:    res.Manifest.Algorithm,
		GeneratedAt:  res.Manifest.GeneratedAt,
		ScannedAt:    time.Now(),
		Duration:     res.Duration,
	}
	return r.Render(w, res.Diff, meta)
}
