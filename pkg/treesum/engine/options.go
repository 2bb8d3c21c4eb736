// Package engine builds manifests and compares trees against them.
//
// Both operations walk the tree with the same ignore policy, hash files on a
// bounded worker pool and stream ordered progress events to a Sink.
package engine

import (
	"errors"
	"runtime"
	"sort"

	"github.com/jamesainslie/treesum/pkg/treesum/hasher"
	"github.com/jamesainslie/treesum/pkg/treesum/ignore"
)

var (
	// ErrAborted is returned when an operation is cancelled through its context.
	ErrAborted = errors.New("operation aborted")

	// ErrManifestExists is returned by BuildAndWrite when a manifest is present
	// and Overwrite is not set.
	ErrManifestExists = errors.New("manifest already exists")

	// ErrBusy is returned by the Controller when the root already has an
	// operation in flight.
	ErrBusy = errors.New("an operation is already running for this root")
)

// Options configures the Builder and the Comparator.
type Options struct {
	// Algorithm names the digest for new manifests. Empty means hasher.Default.
	// The Comparator always uses the manifest's own algorithm.
	Algorithm string

	// Workers bounds the number of files hashed concurrently.
	// Zero uses runtime.NumCPU().
	Workers int

	// WalkWorkers is passed to the walker. Zero lets the walker decide.
	WalkWorkers int

	// ChunkSize is the hasher read size. Zero uses hasher.DefaultChunkSize.
	ChunkSize int

	// Policy selects ignored paths. Nil uses ignore.Default().
	Policy *ignore.Policy

	// Sink receives progress events. Nil discards them.
	Sink Sink

	// Overwrite allows BuildAndWrite to replace an existing manifest.
	Overwrite bool
}

func (o Options) withDefaults() Options {
	if o.Algorithm == "" {
		o.Algorithm = hasher.Default
	}
	if o.Workers < 1 {
		o.Workers = runtime.NumCPU()
	}
	if o.Policy == nil {
		o.Policy = ignore.Default()
	}
	if o.Sink == nil {
		o.Sink = Discard
	}
	o.Sink = &lockedSink{sink: o.Sink}
	return o
}

// FileError records a file or directory that could not be read.
type FileError struct {
	// Path is relative to the root.
	Path string
	Err  error
}

func (e FileError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func sortFileErrors(errs []FileError) {
	sort.Slice(errs, func(i, j int) bool { return errs[i].Path < errs[j].Path })
}
