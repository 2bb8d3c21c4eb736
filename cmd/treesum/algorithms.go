package main

import (
	"fmt"

	"github.com/jamesainslie/treesum/pkg/treesum/hasher"
	"github.com/spf13/cobra"
)

var algorithmsCmd = &cobra.Command{
	Use:   "algorithms",
	Short: "List supported digest algorithms",
	Long: `List the digest algorithms a manifest can be built with. Verification
always uses the algorithm recorded in the manifest.`,
	Args: cobra.NoArgs,
	Run:  runAlgorithms,
}

func init() {
	rootCmd.AddCommand(algorithmsCmd)
}

func runAlgorithms(*cobra.Command, []string) {
	for _, name := range hasher.Names() {
		algo := hasher.MustLookup(name)
		marker := " "
		if name == cfg.Algorithm {
			marker = "*"
		}
		fmt.Printf("%s %-9s %3d-bit\n", marker, name, algo.Size*8)
	}
}
