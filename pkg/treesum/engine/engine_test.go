package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/jamesainslie/treesum/pkg/treesum/ignore"
	"github.com/jamesainslie/treesum/pkg/treesum/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, files)
	return root
}

func build(t *testing.T, root string, opts Options) *manifest.Manifest {
	t.Helper()
	opts.Overwrite = true
	b, err := NewBuilder(opts)
	require.NoError(t, err)
	res, err := b.BuildAndWrite(context.Background(), root)
	require.NoError(t, err)
	return res.Manifest
}

func compare(t *testing.T, root string) *DiffResult {
	t.Helper()
	d, _, err := NewComparator(Options{}).CompareRoot(context.Background(), root)
	require.NoError(t, err)
	return d
}

func assertCounts(t *testing.T, d *DiffResult) {
	t.Helper()
	assert.Equal(t, d.TotalExpected, d.OK+len(d.Missing)+len(d.Mismatched())+len(d.Errored))
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kind(k Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func TestScenarioDeleteAndAdd(t *testing.T) {
	t.Parallel()
	root := newTree(t, map[string]string{"a.txt": "hi", "b/c.txt": "bye"})

	m := build(t, root, Options{})
	require.Len(t, m.Entries, 2)
	assert.Equal(t, manifest.FileRecord{Path: "a.txt", Digest: "49f68a5c8493ec2c0bf489821c21fc3b", Size: 2, ModTime: m.Entries[0].ModTime}, m.Entries[0])
	assert.Equal(t, "bfa99df33b137bc8fb5f5407d7e58da8", m.Entries[1].Digest)
	assert.Equal(t, int64(3), m.Entries[1].Size)
	assert.Equal(t, "md5", m.Algorithm)
	assert.Equal(t, filepath.Base(root), m.RootHint)

	require.NoError(t, os.Remove(filepath.Join(root, "a.txt")))
	writeTree(t, root, map[string]string{"d.txt": "new"})

	d := compare(t, root)
	assert.Equal(t, []string{"a.txt"}, d.Missing)
	assert.Equal(t, []string{"d.txt"}, d.Extra)
	assert.Empty(t, d.SizeMismatch)
	assert.Empty(t, d.HashMismatch)
	assert.Equal(t, 1, d.OK)
	assert.Equal(t, 2, d.TotalExpected)
	assert.Equal(t, SeverityFail, d.Status())
	assertCounts(t, d)
}

func TestRoundTripIsClean(t *testing.T) {
	t.Parallel()
	files := map[string]string{}
	for i := 0; i < 40; i++ {
		files[fmt.Sprintf("dir%d/file%02d.bin", i%4, i)] = fmt.Sprintf("content %d", i)
	}
	root := newTree(t, files)

	for _, algo := range []string{"md5", "sha256", "xxh3"} {
		m := build(t, root, Options{Algorithm: algo, Workers: 4})
		assert.Equal(t, algo, m.Algorithm)

		d := compare(t, root)
		assert.True(t, d.Clean(), algo)
		assert.Equal(t, 40, d.OK)
		assert.Equal(t, 40, d.TotalExpected)
		assert.Equal(t, SeverityPass, d.Status())
	}
}

func TestRenameIsMissingPlusExtra(t *testing.T) {
	t.Parallel()
	root := newTree(t, map[string]string{"old.txt": "same", "keep.txt": "k"})
	build(t, root, Options{})

	require.NoError(t, os.Rename(filepath.Join(root, "old.txt"), filepath.Join(root, "new.txt")))

	d := compare(t, root)
	assert.Equal(t, []string{"old.txt"}, d.Missing)
	assert.Equal(t, []string{"new.txt"}, d.Extra)
	assert.Empty(t, d.Mismatched())
	assertCounts(t, d)
}

func TestSameSizeChangeIsHashMismatchOnly(t *testing.T) {
	t.Parallel()
	root := newTree(t, map[string]string{"a.txt": "abc"})
	build(t, root, Options{})

	writeTree(t, root, map[string]string{"a.txt": "xyz"})

	d := compare(t, root)
	assert.Equal(t, []string{"a.txt"}, d.HashMismatch)
	assert.Empty(t, d.SizeMismatch)
	assert.Empty(t, d.Missing)
	assert.Empty(t, d.Extra)
	assertCounts(t, d)
}

func TestSizeChangeIsSizeAndHashMismatch(t *testing.T) {
	t.Parallel()
	root := newTree(t, map[string]string{"a.txt": "abc", "b.txt": "b"})
	build(t, root, Options{})

	writeTree(t, root, map[string]string{"a.txt": "abcdef"})

	d := compare(t, root)
	assert.Equal(t, []string{"a.txt"}, d.SizeMismatch)
	assert.Equal(t, []string{"a.txt"}, d.HashMismatch)
	assert.Equal(t, []string{"a.txt"}, d.Mismatched())
	assert.Equal(t, 1, d.OK)
	assertCounts(t, d)
}

func TestBookkeepingFilesNeverTracked(t *testing.T) {
	t.Parallel()
	root := newTree(t, map[string]string{
		"a.txt":                              "a",
		"MD5SUMS.txt":                        "legacy",
		"sub/checksums.md5":                  "legacy",
		"treesum-report-20260101-101010.md":  "report",
		"treesum-report-20260101-101010.TXT": "report",
		"sub/" + ignore.ManifestTempName:     "tmp",
	})

	m := build(t, root, Options{})
	require.Len(t, m.Entries, 1)
	assert.Equal(t, "a.txt", m.Entries[0].Path)

	writeTree(t, root, map[string]string{"treesum-report-20260102-101010.json": "{}"})
	d := compare(t, root)
	assert.True(t, d.Clean())
	assert.Empty(t, d.Extra)
}

func TestExcludePolicySharedByBothWalks(t *testing.T) {
	t.Parallel()
	root := newTree(t, map[string]string{"a.txt": "a", "cache/x": "x"})
	policy, err := ignore.New("cache")
	require.NoError(t, err)

	m := build(t, root, Options{Policy: policy})
	require.Len(t, m.Entries, 1)

	d, err := NewComparator(Options{Policy: policy}).Compare(context.Background(), m, root)
	require.NoError(t, err)
	assert.True(t, d.Clean())
}

func TestEventsAreOrdered(t *testing.T) {
	t.Parallel()
	files := map[string]string{}
	for i := 0; i < 100; i++ {
		files[fmt.Sprintf("f%03d", i)] = fmt.Sprint(i)
	}
	root := newTree(t, files)

	rec := &recorder{}
	build(t, root, Options{Workers: 8, Sink: rec})

	starts := rec.kind(KindStart)
	require.Len(t, starts, 1)
	assert.Equal(t, 100, starts[0].Total)

	fileEvents := rec.kind(KindFile)
	require.Len(t, fileEvents, 100)
	for i, e := range fileEvents {
		assert.Equal(t, i+1, e.Index)
		assert.Equal(t, fmt.Sprintf("f%03d", i), e.Path)
		assert.Equal(t, StatusHashed, e.Status)
		assert.Len(t, e.Digest, 32)
	}
	assert.Len(t, rec.kind(KindDone), 1)

	cmp := &recorder{}
	_, _, err := NewComparator(Options{Workers: 8, Sink: cmp}).CompareRoot(context.Background(), root)
	require.NoError(t, err)
	fileEvents = cmp.kind(KindFile)
	require.Len(t, fileEvents, 100)
	for i, e := range fileEvents {
		assert.Equal(t, i+1, e.Index)
		assert.Equal(t, StatusOK, e.Status)
	}
}

func TestOverwriteGuard(t *testing.T) {
	t.Parallel()
	root := newTree(t, map[string]string{"a.txt": "a"})
	build(t, root, Options{})

	before, err := os.ReadFile(manifest.Path(root))
	require.NoError(t, err)

	b, err := NewBuilder(Options{})
	require.NoError(t, err)
	assert.True(t, b.ManifestExists(root))

	writeTree(t, root, map[string]string{"b.txt": "b"})
	_, err = b.BuildAndWrite(context.Background(), root)
	assert.ErrorIs(t, err, ErrManifestExists)

	after, err := os.ReadFile(manifest.Path(root))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	m := build(t, root, Options{})
	assert.Len(t, m.Entries, 2)
}

func TestUnknownAlgorithm(t *testing.T) {
	t.Parallel()
	_, err := NewBuilder(Options{Algorithm: "crc32"})
	assert.Error(t, err)
}

func TestBuildCancelledWritesNothing(t *testing.T) {
	t.Parallel()
	files := map[string]string{}
	for i := 0; i < 200; i++ {
		files[fmt.Sprintf("f%03d", i)] = "x"
	}
	root := newTree(t, files)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := SinkFunc(func(e Event) {
		if e.Kind == KindFile && e.Index == 1 {
			cancel()
		}
	})

	b, err := NewBuilder(Options{Workers: 1, Sink: sink})
	require.NoError(t, err)
	res, err := b.BuildAndWrite(ctx, root)
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
	assert.False(t, manifest.Exists(root))
	assert.NoFileExists(t, filepath.Join(root, ignore.ManifestTempName))
}

func TestCompareCancelledIsPartial(t *testing.T) {
	t.Parallel()
	files := map[string]string{}
	for i := 0; i < 200; i++ {
		files[fmt.Sprintf("f%03d", i)] = "x"
	}
	root := newTree(t, files)
	m := build(t, root, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := SinkFunc(func(e Event) {
		if e.Kind == KindFile && e.Index == 1 {
			cancel()
		}
	})

	d, err := NewComparator(Options{Workers: 1, Sink: sink}).Compare(ctx, m, root)
	assert.ErrorIs(t, err, ErrAborted)
	require.NotNil(t, d)
	assert.True(t, d.Aborted)
	assert.Less(t, d.Checked(), d.TotalExpected)
	assert.Equal(t, SeverityFail, d.Status())
}

func TestUnreadableFileIsErrored(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	t.Parallel()
	root := newTree(t, map[string]string{"a.txt": "a", "locked.txt": "secret"})
	build(t, root, Options{})

	locked := filepath.Join(root, "locked.txt")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o644) })

	d := compare(t, root)
	assert.Equal(t, []string{"locked.txt"}, d.Errored)
	assert.Contains(t, d.Errors, "locked.txt")
	assert.Empty(t, d.Missing)
	assert.Empty(t, d.Mismatched())
	assert.Equal(t, 1, d.OK)
	assertCounts(t, d)
}

func TestUnreadableDirectoryEntriesAreErrored(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	t.Parallel()
	root := newTree(t, map[string]string{"a.txt": "a", "sub/x.txt": "x", "sub/y.txt": "y"})
	build(t, root, Options{})

	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Chmod(sub, 0o000))
	t.Cleanup(func() { _ = os.Chmod(sub, 0o755) })

	d := compare(t, root)
	assert.Equal(t, []string{"sub/x.txt", "sub/y.txt"}, d.Errored)
	assert.Empty(t, d.Missing)
	assertCounts(t, d)
}

func TestBuildSkipsUnreadableFile(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	t.Parallel()
	root := newTree(t, map[string]string{"a.txt": "a", "locked.txt": "secret"})
	locked := filepath.Join(root, "locked.txt")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o644) })

	rec := &recorder{}
	b, err := NewBuilder(Options{Sink: rec})
	require.NoError(t, err)
	res, err := b.BuildAndWrite(context.Background(), root)
	require.NoError(t, err)

	require.Len(t, res.Manifest.Entries, 1)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "locked.txt", res.Errors[0].Path)
	assert.Len(t, rec.kind(KindError), 1)
}

func TestCompareRootManifestErrors(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	_, _, err := NewComparator(Options{}).CompareRoot(context.Background(), root)
	assert.ErrorIs(t, err, manifest.ErrNotFound)

	writeTree(t, root, map[string]string{"MD5SUMS.txt": "legacy"})
	_, _, err = NewComparator(Options{}).CompareRoot(context.Background(), root)
	assert.ErrorIs(t, err, manifest.ErrLegacyOnly)

	writeTree(t, root, map[string]string{ignore.ManifestName: "{not json"})
	_, _, err = NewComparator(Options{}).CompareRoot(context.Background(), root)
	var perr *manifest.ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestEmptyTree(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	m := build(t, root, Options{})
	assert.Empty(t, m.Entries)

	d := compare(t, root)
	assert.True(t, d.Clean())
	assert.Equal(t, 0, d.TotalExpected)
}
