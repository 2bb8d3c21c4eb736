package walker

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/jamesainslie/treesum/pkg/treesum/ignore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func rels(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Rel
	}
	return out
}

func TestFilesSortedAndRelative(t *testing.T) {
	root := makeTree(t, map[string]string{
		"z.txt":         "z",
		"a.txt":         "a",
		"b/c.txt":       "c",
		"b/d/e.txt":     "e",
		"b/d/f/g/h.txt": "h",
	})

	files, err := New(root, Options{}).Files(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "b/c.txt", "b/d/e.txt", "b/d/f/g/h.txt", "z.txt"}, rels(files))
	for _, f := range files {
		assert.True(t, filepath.IsAbs(f.Path))
		assert.Equal(t, filepath.Join(root, filepath.FromSlash(f.Rel)), f.Path)
	}
}

func TestFilesSkipsBookkeepingFiles(t *testing.T) {
	root := makeTree(t, map[string]string{
		"a.txt":                           "a",
		ignore.ManifestName:               "{}",
		"MD5SUMS.txt":                     "legacy",
		"sub/checksums.md5":               "legacy",
		"treesum-report-20260101-1200.md": "report",
	})

	files, err := New(root, Options{}).Files(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, rels(files))
}

func TestFilesAppliesExcludes(t *testing.T) {
	root := makeTree(t, map[string]string{
		"keep.txt":         "k",
		"cache/blob.bin":   "b",
		"logs/today.log":   "l",
		"logs/keep.txt":    "k",
		"deep/x/trace.log": "t",
	})

	policy, err := ignore.New("cache", "**/*.log")
	require.NoError(t, err)

	files, err := New(root, Options{Policy: policy}).Files(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.txt", "logs/keep.txt"}, rels(files))
}

func TestFilesIgnoresSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := makeTree(t, map[string]string{"real.txt": "r"})
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")))

	files, err := New(root, Options{}).Files(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"real.txt"}, rels(files))
}

func TestFilesReportsUnreadableDirectory(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := makeTree(t, map[string]string{
		"ok.txt":         "ok",
		"locked/secret":  "s",
		"other/also.txt": "a",
	})
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	var (
		mu     sync.Mutex
		failed []string
	)
	w := New(root, Options{OnError: func(path string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, path)
	}})

	files, err := w.Files(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.txt", "other/also.txt"}, rels(files))
	assert.Contains(t, failed, locked)
}

func TestFilesRootErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := New(file, Options{}).Files(context.Background())
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = New(filepath.Join(dir, "missing"), Options{}).Files(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFilesCancelled(t *testing.T) {
	root := makeTree(t, map[string]string{"a.txt": "a", "b/c.txt": "c"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(root, Options{}).Files(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndex(t *testing.T) {
	idx := Index([]File{{Path: "/r/a", Rel: "a"}, {Path: "/r/b/c", Rel: "b/c"}})
	assert.Len(t, idx, 2)
	assert.Equal(t, "/r/b/c", idx["b/c"].Path)
}
