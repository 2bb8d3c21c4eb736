// Package watcher re-verifies a tree against its manifest whenever the tree
// changes. Bursts of filesystem events are coalesced by a debounce timer and
// at most one verification runs at a time.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jamesainslie/treesum/pkg/treesum/engine"
	"github.com/jamesainslie/treesum/pkg/treesum/ignore"
	"github.com/jamesainslie/treesum/pkg/treesum/logging"
	"github.com/jamesainslie/treesum/pkg/treesum/walker"
)

// DefaultDebounce is the quiet period before a change triggers a verify.
const DefaultDebounce = 2 * time.Second

// Verifier runs one compare of root. *engine.Controller satisfies it.
type Verifier interface {
	CompareManifest(ctx context.Context, root string) (*engine.CompareResult, error)
}

// Options configures a Watcher.
type Options struct {
	// Policy decides which changes are ignored. Nil uses ignore.Default().
	Policy *ignore.Policy

	// Debounce is the quiet period after the last relevant event.
	// Zero uses DefaultDebounce.
	Debounce time.Duration

	// Initial verifies once at start without waiting for a change.
	Initial bool

	// OnResult receives every finished verification.
	OnResult func(res *engine.CompareResult, err error)
}

// Watcher watches one tree.
type Watcher struct {
	root    string
	opts    Options
	watcher *fsnotify.Watcher
	log     *logging.Logger

	mu     sync.RWMutex
	paths  map[string]bool
	closed bool
}

// New resolves root and registers watches on it and every directory below
// it that the policy does not exclude. Symlinks are not followed.
func New(root string, opts Options) (*Watcher, error) {
	if opts.Policy == nil {
		opts.Policy = ignore.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	abs, err := walker.Root(root)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:    abs,
		opts:    opts,
		watcher: fsw,
		log:     logging.Get("watcher"),
		paths:   make(map[string]bool),
	}
	if err := w.addTree(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Root returns the absolute root being watched.
func (w *Watcher) Root() string {
	return w.root
}

// addTree adds watches to dir and its subdirectories.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == dir {
				return walkErr
			}
			return nil //nolint:nilerr // unreadable subtrees are reported by the compare
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root {
			if rel, ok := w.rel(p); ok && w.opts.Policy.Skip(rel, true) {
				return filepath.SkipDir
			}
		}
		return w.addWatch(p)
	})
}

func (w *Watcher) addWatch(p string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[p] {
		return nil
	}
	if err := w.watcher.Add(p); err != nil {
		w.log.Warn("failed to add watch", "path", p, "error", err)
		return err
	}
	w.paths[p] = true
	return nil
}

func (w *Watcher) removeWatch(p string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for watched := range w.paths {
		if watched == p || isSubPath(watched, p) {
			_ = w.watcher.Remove(watched)
			delete(w.paths, watched)
		}
	}
}

// Watching returns the number of watched directories.
func (w *Watcher) Watching() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.paths)
}

// Run blocks until ctx is cancelled, verifying root through v after every
// burst of relevant changes. A change that arrives while a verify is running
// schedules another one after it finishes.
func (w *Watcher) Run(ctx context.Context, v Verifier) error {
	timer := time.NewTimer(0)
	if !w.opts.Initial {
		timer.Stop()
	}
	defer timer.Stop()
	timerC := timer.C

	done := make(chan struct{}, 1)
	running, pending := false, false

	for {
		select {
		case <-ctx.Done():
			if running {
				<-done
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.handleEvent(event) {
				continue
			}
			timer.Reset(w.opts.Debounce)
			timerC = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", "error", err)

		case <-timerC:
			timerC = nil
			if running {
				pending = true
				continue
			}
			running = true
			go func() {
				w.verify(ctx, v)
				done <- struct{}{}
			}()

		case <-done:
			running = false
			if pending {
				pending = false
				timer.Reset(w.opts.Debounce)
				timerC = timer.C
			}
		}
	}
}

func (w *Watcher) verify(ctx context.Context, v Verifier) {
	w.log.Info("tree changed, verifying", "root", w.root)
	res, err := v.CompareManifest(ctx, w.root)
	switch {
	case errors.Is(err, engine.ErrBusy):
		w.log.Debug("verify skipped, root busy", "root", w.root)
	case err != nil && ctx.Err() == nil:
		w.log.Warn("verify failed", "root", w.root, "error", err)
	}
	if w.opts.OnResult != nil && ctx.Err() == nil {
		w.opts.OnResult(res, err)
	}
}

// handleEvent keeps the watch set current and reports whether the event
// should trigger a verify.
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	rel, ok := w.rel(event.Name)
	if !ok {
		return false
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		info, err := os.Lstat(event.Name)
		if err == nil && info.IsDir() {
			if w.opts.Policy.Skip(rel, true) {
				return false
			}
			_ = w.addTree(event.Name)
			return true
		}
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		w.removeWatch(event.Name)
	}

	return !w.opts.Policy.Skip(rel, false)
}

// rel returns the slash-separated path of p below the root.
func (w *Watcher) rel(p string) (string, bool) {
	if !isSubPath(p, w.root) {
		return "", false
	}
	r, err := filepath.Rel(w.root, p)
	if err != nil {
		return "", false
	}
	r = filepath.ToSlash(r)
	return r, path.Clean(r) != "."
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.paths = make(map[string]bool)
	return w.watcher.Close()
}

// isSubPath checks if p is under parent.
func isSubPath(p, parent string) bool {
	return len(p) > len(parent) && p[:len(parent)+1] == parent+string(filepath.Separator)
}
