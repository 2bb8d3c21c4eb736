package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/jamesainslie/treesum/pkg/treesum/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage treesum configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/treesum/config.yaml (if set)
  2. ~/.config/treesum/config.yaml

Environment variables override config file settings using the TREESUM_ prefix:
  TREESUM_ALGORITHM=sha256
  TREESUM_WORKERS=8
  TREESUM_REPORT_FORMAT=json`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after files, environment and flags.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in $VISUAL, $EDITOR or vi. A default file is
created first if there is none.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// envOverrides lists the TREESUM_ variables that are set, in key order.
func envOverrides() []string {
	keys := []string{
		"algorithm", "workers", "exclude", "hash.chunk_size",
		"report.enabled", "report.format",
		"history.enabled", "history.path", "history.retention_days",
		"watch.debounce", "logging.level", "logging.path",
	}
	var out []string
	for _, key := range keys {
		name := config.EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if val, ok := os.LookupEnv(name); ok {
			out = append(out, name+"="+val)
		}
	}
	return out
}

func runConfigShow(*cobra.Command, []string) error {
	if file := viper.ConfigFileUsed(); file != "" {
		fmt.Printf("Config file: %s\n\n", file)
	} else {
		fmt.Println("Config file: (using defaults, no file found)")
		fmt.Println()
	}

	fmt.Println("Current Configuration:")
	fmt.Println("----------------------")
	fmt.Printf("algorithm:              %s\n", cfg.Algorithm)
	fmt.Printf("workers:                %d\n", cfg.Workers)
	fmt.Printf("exclude:                %v\n", cfg.Exclude)
	fmt.Printf("hash.chunk_size:        %s\n", cfg.Hash.ChunkSize)
	fmt.Printf("report.enabled:         %t\n", cfg.Report.Enabled)
	fmt.Printf("report.format:          %s\n", cfg.Report.Format)
	fmt.Printf("history.enabled:        %t\n", cfg.History.Enabled)
	fmt.Printf("history.path:           %s\n", cfg.HistoryPath())
	fmt.Printf("history.retention_days: %d\n", cfg.History.RetentionDays)
	fmt.Printf("watch.debounce:         %s\n", cfg.Watch.Debounce)
	fmt.Printf("logging.level:          %s\n", cfg.Logging.Level)
	fmt.Printf("logging.path:           %s\n", cfg.LoggingConfig().Path)

	fmt.Println("\nEnvironment Overrides:")
	fmt.Println("----------------------")
	overrides := envOverrides()
	if len(overrides) == 0 {
		fmt.Println("(none)")
	}
	for _, o := range overrides {
		fmt.Println(o)
	}
	return nil
}

func runConfigEdit(*cobra.Command, []string) error {
	path, _, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}
	printVerbose("Opening %s with %s", path, editor)

	editorCmd := exec.Command(editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

func runConfigInit(*cobra.Command, []string) error {
	path, created, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if !created {
		printInfo("Config file already exists: %s", path)
		printInfo("Use 'treesum config edit' to modify it.")
		return nil
	}
	printInfo("Created default config file: %s", path)
	return nil
}

func runConfigPath(*cobra.Command, []string) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	fmt.Println(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}
	return nil
}
