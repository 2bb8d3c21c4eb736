package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jamesainslie/treesum/pkg/treesum/engine"
	"github.com/jamesainslie/treesum/pkg/treesum/history"
	"github.com/jamesainslie/treesum/pkg/treesum/logging"
	"github.com/jamesainslie/treesum/pkg/treesum/manifest"
	"github.com/jamesainslie/treesum/pkg/treesum/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitError(t *testing.T) {
	inner := errors.New("boom")
	err := error(&exitError{code: exitTrouble, err: inner})
	assert.Equal(t, "boom", err.Error())
	assert.ErrorIs(t, err, inner)

	var ee *exitError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &ee))
	assert.Equal(t, exitTrouble, ee.code)

	assert.Equal(t, "exit status 1", (&exitError{code: exitDiffers}).Error())
}

func TestResolveRoot(t *testing.T) {
	dir := t.TempDir()

	got, err := resolveRoot([]string{dir})
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))

	_, err = resolveRoot([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)

	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = resolveRoot([]string{file})
	assert.Error(t, err)
}

func TestRelaySink(t *testing.T) {
	r := &relaySink{}
	r.Emit(engine.Event{Kind: engine.KindStart})

	var got []engine.Kind
	r.set(engine.SinkFunc(func(e engine.Event) { got = append(got, e.Kind) }))
	r.Emit(engine.Event{Kind: engine.KindFile})
	r.Emit(engine.Event{Kind: engine.KindDone})
	assert.Equal(t, []engine.Kind{engine.KindFile, engine.KindDone}, got)
}

func TestLineSink(t *testing.T) {
	var out, errOut bytes.Buffer
	s := &lineSink{out: &out, errOut: &errOut}

	s.Emit(engine.Event{Kind: engine.KindFile, Index: 1, Total: 2, Path: "a.txt", Status: engine.StatusOK})
	s.Emit(engine.Event{Kind: engine.KindError, Index: 2, Total: 2, Path: "b.txt", Err: errors.New("permission denied")})
	assert.Empty(t, out.String())
	assert.Equal(t, "warning: b.txt: permission denied\n", errOut.String())

	s.verbose = true
	s.Emit(engine.Event{Kind: engine.KindFile, Index: 1, Total: 2, Path: "a.txt", Status: engine.StatusOK})
	assert.Contains(t, out.String(), "[1/2]")
	assert.Contains(t, out.String(), "a.txt")

	errOut.Reset()
	s.quiet = true
	s.Emit(engine.Event{Kind: engine.KindError, Path: "c.txt", Err: errors.New("gone")})
	assert.Empty(t, errOut.String())
}

func TestReporterFor(t *testing.T) {
	r, err := reporterFor("")
	require.NoError(t, err)
	assert.Equal(t, cliDetailLimit, r.(*report.PrettyReporter).Limit)

	r, err = reporterFor("text")
	require.NoError(t, err)
	assert.Equal(t, cliDetailLimit, r.(*report.TextReporter).Limit)

	for _, name := range []string{"json", "yaml", "markdown"} {
		_, err := reporterFor(name)
		assert.NoError(t, err, name)
	}

	_, err = reporterFor("pdf")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestVerifyError(t *testing.T) {
	var ee *exitError

	err := verifyError("/data", fmt.Errorf("/data: %w", manifest.ErrNotFound), nil)
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, exitTrouble, ee.code)
	assert.Contains(t, err.Error(), "treesum build /data")

	err = verifyError("/data", &manifest.LegacyOnlyError{Path: "/data/md5sums.txt"}, nil)
	require.True(t, errors.As(err, &ee))
	assert.ErrorIs(t, err, manifest.ErrLegacyOnly)

	err = verifyError("/data", engine.ErrAborted, &engine.CompareResult{Diff: &engine.DiffResult{TotalExpected: 3}})
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, exitTrouble, ee.code)

	other := errors.New("disk on fire")
	assert.Same(t, other, verifyError("/data", other, nil))
}

func TestParseOp(t *testing.T) {
	tests := []struct {
		in      string
		want    engine.Op
		wantErr bool
	}{
		{"", "", false},
		{"build", engine.OpBuild, false},
		{"Verify", engine.OpCompare, false},
		{"compare", engine.OpCompare, false},
		{"delete", "", true},
	}
	for _, tt := range tests {
		got, err := parseOp(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestRunOutcome(t *testing.T) {
	tests := []struct {
		run  engine.Run
		want string
	}{
		{engine.Run{Op: engine.OpBuild}, "ok"},
		{engine.Run{Op: engine.OpBuild, Err: "boom"}, "error"},
		{engine.Run{Op: engine.OpCompare, Aborted: true, Err: "operation aborted"}, "abort"},
		{engine.Run{Op: engine.OpCompare, Status: engine.SeverityWarn}, "warn"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, runOutcome(&history.Run{Run: tt.run}))
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TREESUM_ALGORITHM", "sha256")
	t.Setenv("TREESUM_REPORT_FORMAT", "json")

	got := envOverrides()
	assert.Contains(t, got, "TREESUM_ALGORITHM=sha256")
	assert.Contains(t, got, "TREESUM_REPORT_FORMAT=json")
}

// TestBuildThenVerify drives the commands end to end. Exit codes travel as
// *exitError out of Execute.
func TestBuildThenVerify(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("TREESUM_HISTORY_PATH", filepath.Join(home, "history"))
	t.Setenv("TREESUM_LOGGING_PATH", filepath.Join(home, "treesum.log"))
	t.Cleanup(func() { _ = logging.Close() })

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("bravo"), 0o644))

	run := func(args ...string) error {
		rootCmd.SetArgs(args)
		return Execute()
	}

	require.NoError(t, run("build", "-q", "-n", root))
	assert.FileExists(t, manifest.Path(root))

	err := run("build", "-q", "-n", root)
	assert.ErrorIs(t, err, engine.ErrManifestExists)

	require.NoError(t, run("verify", "-q", "-n", "-o", "text", "--no-report", root))

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("ALPHA"), 0o644))
	err = run("verify", "-q", "-n", "-o", "text", "--no-report", root)
	var ee *exitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, exitDiffers, ee.code)

	store, err := history.Open(filepath.Join(home, "history"))
	require.NoError(t, err)
	defer store.Close()
	abs, err := resolveRoot([]string{root})
	require.NoError(t, err)
	runs, err := store.List(history.Filter{Root: abs})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, engine.OpCompare, runs[0].Op)
	assert.Equal(t, engine.SeverityFail, runs[0].Status)
	assert.Equal(t, engine.OpBuild, runs[2].Op)
}
