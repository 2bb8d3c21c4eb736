package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jamesainslie/treesum/cmd/treesum/tui"
	"github.com/jamesainslie/treesum/pkg/treesum/engine"
	"github.com/jamesainslie/treesum/pkg/treesum/types"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build [path]",
	Short: "Hash a tree and write its manifest",
	Long: `Hash every regular file below path (default: current directory) and write
the manifest to <path>/_md5_manifest.json.

An existing manifest is only replaced with --force. The manifest itself,
legacy checksum files and treesum reports are never hashed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

var buildForce bool

func init() {
	buildCmd.Flags().BoolVarP(&buildForce, "force", "f", false, "replace an existing manifest")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(_ *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}

	relay := &relaySink{}
	ctrl, closeHistory, err := newController(relay, false)
	if err != nil {
		return err
	}
	defer closeHistory()

	if ctrl.PreflightManifestExists(root) && !buildForce {
		return fmt.Errorf("%s already has a manifest, use --force to replace it: %w", root, engine.ErrManifestExists)
	}

	ctx, stop := signalContext()
	defer stop()

	var res *engine.BuildResult
	job := func(ctx context.Context, sink engine.Sink) error {
		relay.set(sink)
		var err error
		res, err = ctrl.BuildManifest(ctx, root, buildForce)
		return err
	}

	if interactive("") {
		if err := initLogging(true); err != nil {
			return fmt.Errorf("failed to initialize TUI logging: %w", err)
		}
		err = tui.Run(tui.Options{Title: "Building manifest", Root: root, Job: job})
	} else {
		printInfo("Hashing %s...", root)
		err = job(ctx, newLineSink())
	}
	if err != nil {
		if errors.Is(err, engine.ErrAborted) {
			printInfo("Build cancelled, no manifest written")
			return &exitError{code: exitTrouble}
		}
		return err
	}

	printBuildResult(res)
	return nil
}

func printBuildResult(res *engine.BuildResult) {
	printInfo("Wrote %s", res.Path)
	printInfo("  %s files, %s, %s digests, %s",
		humanize.Comma(int64(len(res.Manifest.Entries))),
		types.FormatSize(res.Bytes),
		res.Manifest.Algorithm,
		res.Duration.Round(time.Millisecond))

	if len(res.Errors) == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "%d files could not be read and were left out:\n", len(res.Errors))
	for i, fe := range res.Errors {
		if i == cliDetailLimit {
			fmt.Fprintf(os.Stderr, "  ... and %d more\n", len(res.Errors)-cliDetailLimit)
			break
		}
		fmt.Fprintf(os.Stderr, "  %s: %v\n", fe.Path, fe.Err)
	}
}
