package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jamesainslie/treesum/pkg/treesum/engine"
	"github.com/jamesainslie/treesum/pkg/treesum/history"
	"github.com/jamesainslie/treesum/pkg/treesum/types"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View past builds and verifications",
	Long: `List the builds and verifications recorded in the history store, newest
first. Runs are kept for history.retention_days.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs (same as 'treesum history')",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of a recorded run",
	Long:  `Display one run. Any unique prefix of its ID is accepted.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old history entries",
	Long:  `Remove runs older than the retention period, or every run with --all.`,
	Args:  cobra.NoArgs,
	RunE:  runHistoryClean,
}

var (
	historyLimit     int
	historyRoot      string
	historyOp        string
	historyOlderThan int
	historyAll       bool
)

func init() {
	for _, cmd := range []*cobra.Command{historyCmd, historyListCmd} {
		cmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of runs to show")
		cmd.Flags().StringVar(&historyRoot, "root", "", "only runs of this tree")
		cmd.Flags().StringVar(&historyOp, "op", "", "only runs of this operation: build or compare")
	}

	historyCleanCmd.Flags().IntVar(&historyOlderThan, "older-than", 0, "remove runs older than this many days (default: history.retention_days)")
	historyCleanCmd.Flags().BoolVar(&historyAll, "all", false, "remove every run")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// requireHistory opens the history store or explains why it cannot.
func requireHistory() (*history.Store, error) {
	if !cfg.History.Enabled {
		return nil, errors.New("history is disabled (history.enabled: false)")
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, nil
}

func parseOp(s string) (engine.Op, error) {
	switch strings.ToLower(s) {
	case "":
		return "", nil
	case "build":
		return engine.OpBuild, nil
	case "compare", "verify":
		return engine.OpCompare, nil
	}
	return "", fmt.Errorf("unknown operation %q: want build or compare", s)
}

func runHistory(*cobra.Command, []string) error {
	op, err := parseOp(historyOp)
	if err != nil {
		return err
	}
	filter := history.Filter{Op: op, Limit: historyLimit}
	if historyRoot != "" {
		root, err := resolveRoot([]string{historyRoot})
		if err != nil {
			return err
		}
		filter.Root = root
	}

	store, err := requireHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(filter)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		printInfo("No runs recorded.")
		printInfo("Run 'treesum build [path]' to create a manifest.")
		return nil
	}

	fmt.Printf("%-8s  %-7s  %-6s  %-12s  %-10s  %s\n", "ID", "OP", "STATUS", "WHEN", "FILES", "ROOT")
	fmt.Println(strings.Repeat("-", 80))
	for _, r := range runs {
		fmt.Printf("%-8s  %-7s  %-6s  %-12s  %-10s  %s\n",
			r.ShortID(),
			r.Op,
			runOutcome(r),
			humanize.Time(r.StartedAt),
			humanize.Comma(int64(r.Files)),
			r.Root)
	}
	fmt.Println(strings.Repeat("-", 80))
	printInfo("Use 'treesum history show <id>' for details.")
	return nil
}

// runOutcome is the one-word outcome of a run.
func runOutcome(r *history.Run) string {
	switch {
	case r.Aborted:
		return "abort"
	case r.Err != "":
		return "error"
	case r.Op == engine.OpBuild:
		return "ok"
	}
	return string(r.Status)
}

func runHistoryShow(_ *cobra.Command, args []string) error {
	store, err := requireHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := store.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Println("Run Details")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("ID:         %s\n", r.ID)
	fmt.Printf("Operation:  %s\n", r.Op)
	fmt.Printf("Root:       %s\n", r.Root)
	fmt.Printf("Algorithm:  %s\n", r.Algorithm)
	fmt.Printf("Started:    %s (%s)\n", r.StartedAt.Format("2006-01-02 15:04:05 MST"), humanize.Time(r.StartedAt))
	fmt.Printf("Duration:   %s\n", r.Duration.Round(time.Millisecond))
	fmt.Printf("Status:     %s\n", runOutcome(r))
	fmt.Printf("Files:      %s\n", humanize.Comma(int64(r.Files)))
	if r.Bytes > 0 {
		fmt.Printf("Size:       %s\n", types.FormatSize(r.Bytes))
	}
	if r.Errors > 0 {
		fmt.Printf("Unreadable: %d\n", r.Errors)
	}
	if s := r.Summary; s != nil {
		fmt.Println()
		fmt.Printf("  ok:            %d\n", s.OK)
		fmt.Printf("  missing:       %d\n", s.Missing)
		fmt.Printf("  size changed:  %d\n", s.SizeMismatch)
		fmt.Printf("  hash changed:  %d\n", s.HashMismatch)
		fmt.Printf("  extra:         %d\n", s.Extra)
		fmt.Printf("  errored:       %d\n", s.Errored)
	}
	if r.ReportPath != "" {
		fmt.Printf("\nReport:     %s\n", r.ReportPath)
	}
	if r.Err != "" {
		fmt.Printf("\nError:      %s\n", r.Err)
	}
	return nil
}

func runHistoryClean(*cobra.Command, []string) error {
	store, err := requireHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	if historyAll {
		if err := store.Clear(); err != nil {
			return err
		}
		printInfo("Removed all runs.")
		return nil
	}

	days := historyOlderThan
	if days <= 0 {
		days = cfg.History.RetentionDays
	}
	if days <= 0 {
		printInfo("Retention is unlimited, nothing to remove. Use --older-than or --all.")
		return nil
	}
	n, err := store.PruneOlderThan(time.Duration(days) * 24 * time.Hour)
	if err != nil {
		return err
	}
	printInfo("Removed %d runs older than %d days.", n, days)
	return nil
}
