// Package walker enumerates the regular files of a tree for hashing.
//
// Traversal runs in parallel with fastwalk; the result is sorted by
// relative path so every run over the same tree yields the same order.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/jamesainslie/treesum/pkg/treesum/ignore"
)

// ErrNotDirectory is returned when the walk root is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// File is one regular file found under the root.
type File struct {
	// Path is the absolute path on the host filesystem.
	Path string

	// Rel is the path relative to the root with forward slashes.
	Rel string
}

// Options configures a Walker.
type Options struct {
	// Policy selects ignored paths. Nil uses ignore.Default().
	Policy *ignore.Policy

	// Workers is the number of traversal goroutines. Zero lets fastwalk decide.
	Workers int

	// OnError is called for every unreadable directory or entry.
	// The affected subtree is skipped and the walk continues.
	// It may be called from multiple goroutines.
	OnError func(path string, err error)
}

// Walker lists the files below one root.
type Walker struct {
	root string
	opts Options
}

// New returns a walker for root.
func New(root string, opts Options) *Walker {
	if opts.Policy == nil {
		opts.Policy = ignore.Default()
	}
	return &Walker{root: root, opts: opts}
}

// Root resolves the walk root to an absolute directory path.
func Root(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s: %w", abs, ErrNotDirectory)
	}
	return abs, nil
}

// Files walks the tree and returns its regular files sorted by Rel.
// Symbolic links are neither followed nor returned.
func (w *Walker) Files(ctx context.Context) ([]File, error) {
	root, err := Root(w.root)
	if err != nil {
		return nil, err
	}

	var (
		mu    sync.Mutex
		files []File
	)

	conf := fastwalk.Config{
		Follow:     false,
		NumWorkers: w.opts.Workers,
	}

	walkErr := fastwalk.Walk(&conf, root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		// A failed directory read arrives here after the directory itself was
		// visited; returning nil skips its contents and keeps walking.
		if err != nil {
			w.report(path, err)
			return nil
		}

		if path == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			w.report(path, relErr)
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if w.opts.Policy.Skip(rel, true) {
				return fastwalk.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || w.opts.Policy.Skip(rel, false) {
			return nil
		}

		mu.Lock()
		files = append(files, File{Path: path, Rel: rel})
		mu.Unlock()
		return nil
	})

	if walkErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("walking %s: %w", root, walkErr)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Rel < files[j].Rel })
	return files, nil
}

// Index returns the files keyed by relative path.
func Index(files []File) map[string]File {
	m := make(map[string]File, len(files))
	for _, f := range files {
		m[f.Rel] = f
	}
	return m
}

func (w *Walker) report(path string, err error) {
	if w.opts.OnError != nil {
		w.opts.OnError(path, err)
	}
}
