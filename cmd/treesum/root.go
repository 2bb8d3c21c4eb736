package main

import (
	"fmt"
	"os"

	"github.com/jamesainslie/treesum/pkg/treesum/config"
	"github.com/jamesainslie/treesum/pkg/treesum/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	cfg     *config.Config

	rootCmd = &cobra.Command{
		Use:   "treesum",
		Short: "Verify directory trees against a checksum manifest",
		Long: `treesum hashes every regular file of a directory tree into a manifest
stored inside the tree, and later verifies the tree against it.

Verification reports missing files, extra files, size changes and content
changes, and writes a report file into the tree.

Examples:
  treesum build ~/photos          # Write ~/photos/_md5_manifest.json
  treesum verify ~/photos         # Compare the tree with its manifest
  treesum verify -o json .        # Machine-readable result
  treesum watch ~/photos          # Re-verify whenever the tree changes
  treesum history                 # Recent builds and verifications`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initialize,
		PersistentPostRun: func(*cobra.Command, []string) { _ = logging.Close() },
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/treesum/config.yaml)")
	flags.StringP("algorithm", "a", "", "digest algorithm for new manifests (see 'treesum algorithms')")
	flags.IntP("workers", "w", 0, "override hash worker count (0=auto)")
	flags.StringSliceP("exclude", "e", nil, "exclude glob relative to the root (repeatable)")
	flags.BoolP("no-interactive", "n", false, "disable the progress UI")
	flags.BoolP("quiet", "q", false, "minimal output")
	flags.BoolP("verbose", "v", false, "debug output")

	// Bind flags to viper
	_ = viper.BindPFlag("algorithm", flags.Lookup("algorithm"))
	_ = viper.BindPFlag("workers", flags.Lookup("workers"))
	_ = viper.BindPFlag("exclude", flags.Lookup("exclude"))
	_ = viper.BindPFlag("no_interactive", flags.Lookup("no-interactive"))
	_ = viper.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
}

// initialize loads the configuration and starts file logging before any
// command runs.
func initialize(cmd *cobra.Command, _ []string) error {
	loaded, err := config.LoadWith(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	if err := initLogging(false); err != nil {
		// Logging is best effort; the command still runs.
		printVerbose("logging disabled: %v", err)
	}
	logging.Get("cli").Debug("command started", "command", cmd.CommandPath())
	return nil
}

// initLogging (re)configures logging. The TUI keeps recent entries in
// memory instead of writing to stderr.
func initLogging(tui bool) error {
	lc := cfg.LoggingConfig()
	lc.TUIMode = tui
	switch {
	case tui || getQuiet():
	case getVerbose():
		lc.ConsoleLevel = "debug"
	default:
		lc.ConsoleLevel = "warn"
	}
	return logging.Init(lc)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
