package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jamesainslie/treesum/pkg/treesum/hasher"
	"github.com/jamesainslie/treesum/pkg/treesum/manifest"
	"github.com/jamesainslie/treesum/pkg/treesum/walker"
)

// Comparator checks a tree against a manifest.
type Comparator struct {
	opts Options
}

// NewComparator returns a Comparator.
func NewComparator(opts Options) *Comparator {
	return &Comparator{opts: opts.withDefaults()}
}

type entryCheck struct {
	status Status
	digest string
	err    error
}

// Compare classifies every manifest entry against the files under root and
// collects the files the manifest does not know. Entries that cannot be
// read are Errored and appear in no other set.
//
// A cancelled compare returns the partial result with Aborted set together
// with ErrAborted.
func (c *Comparator) Compare(ctx context.Context, m *manifest.Manifest, root string) (*DiffResult, error) {
	sink := c.opts.Sink

	abs, err := walker.Root(root)
	if err != nil {
		return nil, err
	}
	algo, err := hasher.Lookup(m.Algorithm)
	if err != nil {
		return nil, err
	}
	h := hasher.New(algo, c.opts.ChunkSize)

	files, walkErrs, err := walk(ctx, abs, c.opts)
	if err != nil {
		d := newDiffResult(len(m.Entries))
		return c.abort(ctx, d, err)
	}
	current := walker.Index(files)

	total := len(m.Entries)
	d := newDiffResult(total)
	sink.Emit(Event{Op: OpCompare, Kind: KindStart, Total: total, Path: abs})
	for _, fe := range walkErrs {
		sink.Emit(Event{Op: OpCompare, Kind: KindError, Total: total, Path: fe.Path, Status: StatusErrored, Err: fe.Err})
	}

	done := runOrdered(ctx, total, c.opts.Workers,
		func(i int) entryCheck {
			e := m.Entries[i]
			f, ok := current[e.Path]
			if !ok {
				if fe, under := underFailedDir(e.Path, walkErrs); under {
					return entryCheck{status: StatusErrored, err: fe.Err}
				}
				return entryCheck{status: StatusMissing}
			}
			return checkEntry(h, e, f)
		},
		func(i int, r entryCheck) {
			path := m.Entries[i].Path
			ev := Event{Op: OpCompare, Kind: KindFile, Index: i + 1, Total: total, Path: path, Digest: r.digest, Status: r.status}
			switch r.status {
			case StatusOK:
				d.OK++
			case StatusMissing:
				d.Missing = append(d.Missing, path)
			case StatusSizeMismatch:
				d.SizeMismatch = append(d.SizeMismatch, path)
			case StatusHashMismatch:
				d.HashMismatch = append(d.HashMismatch, path)
			case StatusMismatch:
				d.SizeMismatch = append(d.SizeMismatch, path)
				d.HashMismatch = append(d.HashMismatch, path)
			case StatusErrored:
				d.Errored = append(d.Errored, path)
				d.Errors[path] = r.err.Error()
				ev.Kind, ev.Err = KindError, r.err
			}
			sink.Emit(ev)
		})

	expected := m.Index()
	for _, f := range files {
		if _, ok := expected[f.Rel]; !ok {
			d.Extra = append(d.Extra, f.Rel)
		}
	}
	d.sort()

	if done < total || ctx.Err() != nil {
		return c.abort(ctx, d, ctx.Err())
	}

	sink.Emit(Event{Op: OpCompare, Kind: KindSummary, Index: total, Total: total, Message: d.Summary().String()})
	sink.Emit(Event{Op: OpCompare, Kind: KindDone, Index: total, Total: total, Status: Status(d.Status())})
	return d, nil
}

// CompareRoot locates and loads the manifest under root, then compares.
// Manifest errors are returned unchanged.
func (c *Comparator) CompareRoot(ctx context.Context, root string) (*DiffResult, *manifest.Manifest, error) {
	path, err := manifest.Locate(root)
	if err != nil {
		return nil, nil, err
	}
	m, err := manifest.Load(path)
	if err != nil {
		return nil, nil, err
	}
	d, err := c.Compare(ctx, m, root)
	return d, m, err
}

func (c *Comparator) abort(ctx context.Context, d *DiffResult, err error) (*DiffResult, error) {
	if ctx.Err() == nil {
		c.opts.Sink.Emit(Event{Op: OpCompare, Kind: KindDone, Err: err})
		return nil, err
	}
	d.Aborted = true
	err = fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
	c.opts.Sink.Emit(Event{Op: OpCompare, Kind: KindDone, Index: d.Checked(), Total: d.TotalExpected, Err: err})
	return d, err
}

// checkEntry compares size and digest independently.
func checkEntry(h *hasher.Hasher, e manifest.FileRecord, f walker.File) entryCheck {
	info, err := os.Lstat(f.Path)
	if err != nil {
		return entryCheck{status: StatusErrored, err: err}
	}
	digest, err := h.Hash(f.Path)
	if err != nil {
		return entryCheck{status: StatusErrored, err: err}
	}

	sizeDiff := info.Size() != e.Size
	hashDiff := !strings.EqualFold(digest, e.Digest)
	r := entryCheck{digest: digest}
	switch {
	case sizeDiff && hashDiff:
		r.status = StatusMismatch
	case sizeDiff:
		r.status = StatusSizeMismatch
	case hashDiff:
		r.status = StatusHashMismatch
	default:
		r.status = StatusOK
	}
	return r
}

// underFailedDir reports whether rel lies below a directory the walk could
// not read. Such entries are unverifiable, not missing.
func underFailedDir(rel string, errs []FileError) (FileError, bool) {
	for _, fe := range errs {
		if fe.Path == "." || fe.Path == rel || strings.HasPrefix(rel, fe.Path+"/") {
			return fe, true
		}
	}
	return FileError{}, false
}
