package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jamesainslie/treesum/cmd/treesum/tui"
	"github.com/jamesainslie/treesum/pkg/treesum/engine"
	"github.com/jamesainslie/treesum/pkg/treesum/manifest"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var verifyCmd = &cobra.Command{
	Use:     "verify [path]",
	Aliases: []string{"compare", "check"},
	Short:   "Compare a tree with its manifest",
	Long: `Rehash the tree below path (default: current directory) and compare it with
<path>/_md5_manifest.json.

The result lists missing files, extra files, size changes, content changes
and unreadable files. A report is written into the tree unless disabled.

Exit status is 0 when nothing is missing, changed or unreadable (extra files
only warn), 1 when the tree differs and 2 on trouble.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

var (
	verifyOutput   string
	verifyNoReport bool
)

func init() {
	flags := verifyCmd.Flags()
	flags.StringVarP(&verifyOutput, "output", "o", "pretty", "terminal output: pretty, text, json, yaml, markdown")
	flags.String("report-format", "", "format of the report file written into the tree")
	flags.BoolVar(&verifyNoReport, "no-report", false, "do not write a report file")

	_ = viper.BindPFlag("report.format", flags.Lookup("report-format"))
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(_ *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}
	if _, err := reporterFor(verifyOutput); err != nil {
		return err
	}

	relay := &relaySink{}
	ctrl, closeHistory, err := newController(relay, !verifyNoReport)
	if err != nil {
		return err
	}
	defer closeHistory()

	ctx, stop := signalContext()
	defer stop()

	var res *engine.CompareResult
	job := func(ctx context.Context, sink engine.Sink) error {
		relay.set(sink)
		var err error
		res, err = ctrl.CompareManifest(ctx, root)
		return err
	}

	if interactive(verifyOutput) {
		if err := initLogging(true); err != nil {
			return fmt.Errorf("failed to initialize TUI logging: %w", err)
		}
		err = tui.Run(tui.Options{Title: "Verifying", Root: root, Job: job})
	} else {
		if !isStructured(verifyOutput) {
			printInfo("Verifying %s...", root)
		}
		err = job(ctx, newLineSink())
	}
	if err != nil {
		return verifyError(root, err, res)
	}

	if err := printDiff(os.Stdout, verifyOutput, res, root); err != nil {
		return fmt.Errorf("failed to print result: %w", err)
	}
	printReportOutcome(res)

	if res.Diff.Status() == engine.SeverityFail {
		return &exitError{code: exitDiffers}
	}
	return nil
}

// isStructured reports whether an output format is meant for machines, in
// which case nothing but the document goes to stdout.
func isStructured(format string) bool {
	return format == "json" || format == "yaml"
}

// verifyError turns a compare failure into a user-facing error.
func verifyError(root string, err error, res *engine.CompareResult) error {
	switch {
	case errors.Is(err, engine.ErrAborted):
		if res != nil && res.Diff != nil {
			printInfo("Verify cancelled after %d of %d entries, no report written",
				res.Diff.Checked(), res.Diff.TotalExpected)
		} else {
			printInfo("Verify cancelled, no report written")
		}
		return &exitError{code: exitTrouble}
	case errors.Is(err, manifest.ErrLegacyOnly):
		return &exitError{code: exitTrouble, err: fmt.Errorf("%w\nrun 'treesum build %s' to create a manifest", err, root)}
	case errors.Is(err, manifest.ErrNotFound):
		return &exitError{code: exitTrouble, err: fmt.Errorf("%s has no manifest, run 'treesum build %s' first", root, root)}
	}
	return err
}

func printReportOutcome(res *engine.CompareResult) {
	out := printInfo
	if isStructured(verifyOutput) {
		out = func(format string, args ...interface{}) {
			if !getQuiet() {
				fmt.Fprintf(os.Stderr, format+"\n", args...)
			}
		}
	}
	switch {
	case res.ReportPath != "":
		out("Report: %s", res.ReportPath)
	case res.ReportErr != nil:
		fmt.Fprintf(os.Stderr, "warning: report not written: %v\n", res.ReportErr)
	}
}
