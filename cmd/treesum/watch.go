package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jamesainslie/treesum/pkg/treesum/engine"
	"github.com/jamesainslie/treesum/pkg/treesum/ignore"
	"github.com/jamesainslie/treesum/pkg/treesum/manifest"
	"github.com/jamesainslie/treesum/pkg/treesum/watcher"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Re-verify a tree whenever it changes",
	Long: `Watch path (default: current directory) and verify it against its manifest
after every burst of changes. Changes to the manifest, reports and excluded
paths are ignored. Stop with Ctrl+C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

var watchInitial bool

func init() {
	flags := watchCmd.Flags()
	flags.BoolVar(&watchInitial, "initial", false, "verify once at start")
	flags.Duration("debounce", 0, "quiet period before verifying (default: watch.debounce)")
	_ = viper.BindPFlag("watch.debounce", flags.Lookup("debounce"))
	rootCmd.AddCommand(watchCmd)
}

func runWatch(_ *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}
	if _, err := manifest.Locate(root); err != nil {
		return verifyError(root, err, nil)
	}

	policy, err := ignore.New(cfg.Exclude...)
	if err != nil {
		return err
	}
	ctrl, closeHistory, err := newController(engine.Discard, true)
	if err != nil {
		return err
	}
	defer closeHistory()

	w, err := watcher.New(root, watcher.Options{
		Policy:   policy,
		Debounce: cfg.Watch.Debounce,
		Initial:  watchInitial,
		OnResult: printWatchResult,
	})
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	defer w.Close()

	ctx, stop := signalContext()
	defer stop()

	printInfo("Watching %s (%d directories). Press Ctrl+C to stop.", w.Root(), w.Watching())
	return w.Run(ctx, ctrl)
}

// printWatchResult prints one line per finished verification.
func printWatchResult(res *engine.CompareResult, err error) {
	stamp := time.Now().Format("15:04:05")
	switch {
	case errors.Is(err, engine.ErrAborted):
		return
	case err != nil:
		fmt.Fprintf(os.Stderr, "%s  error: %v\n", stamp, err)
		return
	}

	line := fmt.Sprintf("%s  %-4s  %s", stamp, res.Diff.Status(), res.Diff.Summary())
	if res.ReportPath != "" {
		line += "  " + res.ReportPath
	}
	printInfo("%s", line)
	if res.ReportErr != nil {
		fmt.Fprintf(os.Stderr, "%s  warning: report not written: %v\n", stamp, res.ReportErr)
	}
}
