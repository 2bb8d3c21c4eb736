// Package config provides configuration management for treesum.
package config

import "time"

// Default configuration values.
const (
	// DefaultAlgorithm is the digest used for new manifests.
	DefaultAlgorithm = "md5"

	// DefaultWorkers of zero sizes the hash pool from the detected CPUs.
	DefaultWorkers = 0

	// DefaultChunkSize is the hasher read size.
	DefaultChunkSize = "1MiB"

	// DefaultReportFormat is the format of report files written by verify.
	DefaultReportFormat = "markdown"

	// DefaultRetentionDays is how long run history is kept.
	DefaultRetentionDays = 90

	// DefaultDebounce is how long watch mode waits for the tree to settle.
	DefaultDebounce = 2 * time.Second

	// EnvPrefix prefixes every environment override, e.g. TREESUM_ALGORITHM.
	EnvPrefix = "TREESUM"
)

// DefaultExclusions holds exclude globs applied when none are configured.
var DefaultExclusions = []string{}

// DefaultComponentLevels are the per-component log levels.
var DefaultComponentLevels = map[string]string{
	"engine":  "info",
	"report":  "info",
	"history": "info",
	"watcher": "info",
	"tui":     "info",
}
