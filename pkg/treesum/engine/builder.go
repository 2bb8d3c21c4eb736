package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jamesainslie/treesum/pkg/treesum/hasher"
	"github.com/jamesainslie/treesum/pkg/treesum/manifest"
	"github.com/jamesainslie/treesum/pkg/treesum/walker"
)

// BuildResult is the outcome of a build.
type BuildResult struct {
	Manifest *manifest.Manifest

	// Errors lists the files left out of the manifest because they could
	// not be read, in walk order.
	Errors []FileError

	// Path is the written manifest, empty when the build was not written.
	Path string

	Bytes    int64
	Duration time.Duration
}

// Builder hashes a tree into a Manifest.
type Builder struct {
	opts   Options
	algo   hasher.Algorithm
	hasher *hasher.Hasher
}

// NewBuilder validates the algorithm and returns a Builder.
func NewBuilder(opts Options) (*Builder, error) {
	opts = opts.withDefaults()
	algo, err := hasher.Lookup(opts.Algorithm)
	if err != nil {
		return nil, err
	}
	return &Builder{
		opts:   opts,
		algo:   algo,
		hasher: hasher.New(algo, opts.ChunkSize),
	}, nil
}

// ManifestExists reports whether root already has a manifest.
func (b *Builder) ManifestExists(root string) bool {
	return manifest.Exists(root)
}

type fileResult struct {
	rec manifest.FileRecord
	err error
}

// Build walks root and hashes every tracked file. Unreadable files are
// reported in Errors and left out; they do not fail the build.
// A cancelled build returns ErrAborted and no result.
func (b *Builder) Build(ctx context.Context, root string) (*BuildResult, error) {
	start := time.Now()
	sink := b.opts.Sink

	abs, err := walker.Root(root)
	if err != nil {
		return nil, err
	}

	files, walkErrs, err := walk(ctx, abs, b.opts)
	if err != nil {
		return nil, b.finish(ctx, err)
	}

	total := len(files)
	sink.Emit(Event{Op: OpBuild, Kind: KindStart, Total: total, Path: abs})

	res := &BuildResult{Errors: walkErrs}
	for _, fe := range walkErrs {
		sink.Emit(Event{Op: OpBuild, Kind: KindError, Total: total, Path: fe.Path, Status: StatusErrored, Err: fe.Err})
	}

	entries := make([]manifest.FileRecord, 0, total)
	done := runOrdered(ctx, total, b.opts.Workers,
		func(i int) fileResult { return b.hashFile(files[i]) },
		func(i int, r fileResult) {
			ev := Event{Op: OpBuild, Index: i + 1, Total: total, Path: files[i].Rel}
			if r.err != nil {
				res.Errors = append(res.Errors, FileError{Path: files[i].Rel, Err: r.err})
				ev.Kind, ev.Status, ev.Err = KindError, StatusErrored, r.err
			} else {
				entries = append(entries, r.rec)
				res.Bytes += r.rec.Size
				ev.Kind, ev.Status, ev.Digest = KindFile, StatusHashed, r.rec.Digest
			}
			sink.Emit(ev)
		})

	if done < total || ctx.Err() != nil {
		return nil, b.finish(ctx, ctx.Err())
	}

	res.Manifest = &manifest.Manifest{
		Tool:        manifest.Tool,
		Algorithm:   b.algo.Name,
		GeneratedAt: time.Now().UTC().Format(manifest.TimeLayout),
		RootHint:    filepath.Base(abs),
		Entries:     entries,
	}
	res.Duration = time.Since(start)

	sink.Emit(Event{
		Op: OpBuild, Kind: KindSummary, Index: total, Total: total,
		Message: fmt.Sprintf("hashed %d files, %d errors", len(entries), len(res.Errors)),
	})
	return res, nil
}

// BuildAndWrite builds root and writes the manifest atomically. Without
// Overwrite an existing manifest is left untouched and ErrManifestExists is
// returned before anything is hashed.
func (b *Builder) BuildAndWrite(ctx context.Context, root string) (*BuildResult, error) {
	if !b.opts.Overwrite && b.ManifestExists(root) {
		return nil, fmt.Errorf("%s: %w", manifest.Path(root), ErrManifestExists)
	}

	res, err := b.Build(ctx, root)
	if err != nil {
		return nil, err
	}

	abs, err := walker.Root(root)
	if err != nil {
		return nil, err
	}
	path, err := manifest.Write(abs, res.Manifest)
	if err != nil {
		b.opts.Sink.Emit(Event{Op: OpBuild, Kind: KindDone, Err: err})
		return nil, err
	}
	res.Path = path
	b.opts.Sink.Emit(Event{Op: OpBuild, Kind: KindDone, Index: len(res.Manifest.Entries), Total: len(res.Manifest.Entries), Path: path})
	return res, nil
}

func (b *Builder) hashFile(f walker.File) fileResult {
	info, err := os.Lstat(f.Path)
	if err != nil {
		return fileResult{err: err}
	}
	if !info.Mode().IsRegular() {
		return fileResult{err: fmt.Errorf("%s is no longer a regular file", f.Rel)}
	}
	digest, err := b.hasher.Hash(f.Path)
	if err != nil {
		return fileResult{err: err}
	}
	return fileResult{rec: manifest.FileRecord{
		Path:    f.Rel,
		Digest:  digest,
		Size:    info.Size(),
		ModTime: info.ModTime().Unix(),
	}}
}

// finish emits the terminal event for a failed build and maps cancellation
// to ErrAborted.
func (b *Builder) finish(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
	}
	b.opts.Sink.Emit(Event{Op: OpBuild, Kind: KindDone, Err: err})
	return err
}

// walk lists the files under abs. Directory read failures are returned as
// FileErrors with root-relative paths.
func walk(ctx context.Context, abs string, opts Options) ([]walker.File, []FileError, error) {
	var (
		mu   sync.Mutex
		errs []FileError
	)
	w := walker.New(abs, walker.Options{
		Policy:  opts.Policy,
		Workers: opts.WalkWorkers,
		OnError: func(path string, err error) {
			rel, relErr := filepath.Rel(abs, path)
			if relErr != nil {
				rel = path
			}
			mu.Lock()
			errs = append(errs, FileError{Path: filepath.ToSlash(rel), Err: err})
			mu.Unlock()
		},
	})
	files, err := w.Files(ctx)
	if err != nil {
		return nil, nil, err
	}
	sortFileErrors(errs)
	return files, errs, nil
}
