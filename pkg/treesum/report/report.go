// Package report renders compare results for people and machines.
//
// Reporters are registered by format name. The text reporter is always
// available and is the fallback when another format fails, so a compare
// always leaves a report behind.
//
// Basic usage:
//
//	path, err := report.Write(root, "markdown", diff, meta)
package report

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/treesum/pkg/treesum/engine"
	"github.com/jamesainslie/treesum/pkg/treesum/logging"
)

// logger is the package-level logger for report operations.
var logger = logging.Get("report")

// ListLimit is the number of paths listed per category in documents.
const ListLimit = 50

// Metadata describes the compare a report belongs to.
type Metadata struct {
	// Tool is the name and version of the program that ran the compare.
	Tool string `json:"tool" yaml:"tool"`

	// Root is the absolute path of the verified tree.
	Root string `json:"root" yaml:"root"`

	// ManifestPath is the manifest the tree was compared against.
	ManifestPath string `json:"manifest_path" yaml:"manifest_path"`

	// Algorithm is the digest algorithm of the manifest.
	Algorithm string `json:"algorithm" yaml:"algorithm"`

	// GeneratedAt is when the manifest was built, as stored in it.
	GeneratedAt string `json:"manifest_generated_at,omitempty" yaml:"manifest_generated_at,omitempty"`

	// ScannedAt is when the compare ran.
	ScannedAt time.Time `json:"scanned_at" yaml:"scanned_at"`

	// Duration is how long the compare took. Zero when unknown.
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// Reporter renders a DiffResult.
type Reporter interface {
	// Render writes the report to w.
	Render(w io.Writer, d *engine.DiffResult, meta Metadata) error

	// Extension is the file extension of written reports, with the dot.
	Extension() string
}

// Factory creates a new Reporter instance.
type Factory func() Reporter

// Registry manages reporter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a reporter factory, replacing any existing one of that name.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new reporter by name.
func (r *Registry) Get(name string) (Reporter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown report format: %s", name)
	}
	return factory(), nil
}

// Available returns the registered names in sorted order.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global reporter registry.
var DefaultRegistry = NewRegistry()

// Register adds a reporter factory to the default registry.
func Register(name string, factory Factory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a reporter from the default registry.
func Get(name string) (Reporter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all reporter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

// category is one labelled path set of a DiffResult.
type category struct {
	Key   string
	Title string
	Paths []string
}

// categories lists the path sets in report order.
func categories(d *engine.DiffResult) []category {
	return []category{
		{Key: "missing", Title: "Missing files", Paths: d.Missing},
		{Key: "size_mismatch", Title: "Size mismatch", Paths: d.SizeMismatch},
		{Key: "hash_mismatch", Title: "Hash mismatch", Paths: d.HashMismatch},
		{Key: "extra", Title: "Extra files", Paths: d.Extra},
		{Key: "errored", Title: "Unreadable files", Paths: d.Errored},
	}
}

// summaryRow is one line of the summary table.
type summaryRow struct {
	Label string
	Count int
}

// summaryRows returns the seven summary rows.
func summaryRows(d *engine.DiffResult) []summaryRow {
	s := d.Summary()
	return []summaryRow{
		{"Total in manifest", s.Total},
		{"OK", s.OK},
		{"Missing", s.Missing},
		{"Size mismatch", s.SizeMismatch},
		{"Hash mismatch", s.HashMismatch},
		{"Extra", s.Extra},
		{"Unreadable", s.Errored},
	}
}

// head returns at most n paths and the number left out.
func head(paths []string, n int) ([]string, int) {
	if n <= 0 || len(paths) <= n {
		return paths, 0
	}
	return paths[:n], len(paths) - n
}
