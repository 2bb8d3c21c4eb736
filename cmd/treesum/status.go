package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jamesainslie/treesum/pkg/treesum/engine"
	"github.com/jamesainslie/treesum/pkg/treesum/history"
	"github.com/jamesainslie/treesum/pkg/treesum/manifest"
	"github.com/jamesainslie/treesum/pkg/treesum/types"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show the manifest and last runs of a tree",
	Long: `Show whether path (default: current directory) has a manifest, what it
holds, and the last recorded build and verification of the tree. Nothing is
hashed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, args []string) error {
	root, err := resolveRoot(args)
	if err != nil {
		return err
	}

	fmt.Printf("Root:        %s\n", root)
	if err := printManifestStatus(root); err != nil {
		return err
	}

	store := openHistory()
	if store == nil {
		return nil
	}
	defer store.Close()

	fmt.Println()
	for _, op := range []engine.Op{engine.OpBuild, engine.OpCompare} {
		r, err := store.Last(root, op)
		switch {
		case errors.Is(err, history.ErrNotFound):
			fmt.Printf("Last %-7s never\n", op+":")
		case err != nil:
			return err
		default:
			fmt.Printf("Last %-7s %s, %s (%s)\n", op+":", humanize.Time(r.StartedAt), runOutcome(r), r.ShortID())
		}
	}
	return nil
}

func printManifestStatus(root string) error {
	path, err := manifest.Locate(root)
	switch {
	case errors.Is(err, manifest.ErrLegacyOnly):
		fmt.Println("Manifest:    none (legacy checksum file only)")
		fmt.Printf("             %v\n", err)
		return nil
	case errors.Is(err, manifest.ErrNotFound):
		fmt.Println("Manifest:    none")
		printInfo("Run 'treesum build %s' to create one.", root)
		return nil
	case err != nil:
		return err
	}

	m, err := manifest.Load(path)
	if err != nil {
		fmt.Printf("Manifest:    %s\n", path)
		return err
	}
	fmt.Printf("Manifest:    %s\n", path)
	fmt.Printf("Algorithm:   %s\n", m.Algorithm)
	fmt.Printf("Entries:     %s\n", humanize.Comma(int64(len(m.Entries))))
	fmt.Printf("Total size:  %s\n", types.FormatSize(m.TotalSize()))
	if t := m.GeneratedTime(); !t.IsZero() {
		fmt.Printf("Generated:   %s (%s)\n", m.GeneratedAt, humanize.Time(t))
	} else if m.GeneratedAt != "" {
		fmt.Printf("Generated:   %s\n", m.GeneratedAt)
	}
	return nil
}
