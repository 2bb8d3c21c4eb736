package history

import (
	"testing"
	"time"

	"github.com/jamesainslie/treesum/pkg/treesum/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, options ...Option) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func run(op engine.Op, root string, started time.Time) engine.Run {
	return engine.Run{Op: op, Root: root, Algorithm: "md5", StartedAt: started, Files: 3}
}

func TestAddAndGet(t *testing.T) {
	s := openStore(t)

	summary := engine.Summary{Total: 3, OK: 2, Missing: 1}
	in := run(engine.OpCompare, "/data", time.Now())
	in.Summary = &summary
	in.Status = engine.SeverityFail
	in.ReportPath = "/data/treesum-report-20260101-120000.md"

	added, err := s.Add(in)
	require.NoError(t, err)
	require.Len(t, added.ID, idLen)

	got, err := s.Get(added.ID)
	require.NoError(t, err)
	assert.Equal(t, added.ID, got.ID)
	assert.Equal(t, engine.OpCompare, got.Op)
	assert.Equal(t, "/data", got.Root)
	assert.Equal(t, engine.SeverityFail, got.Status)
	assert.Equal(t, in.ReportPath, got.ReportPath)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 1, got.Summary.Missing)
}

func TestGetByPrefix(t *testing.T) {
	s := openStore(t)

	added, err := s.Add(run(engine.OpBuild, "/data", time.Now()))
	require.NoError(t, err)

	got, err := s.Get(added.ShortID())
	require.NoError(t, err)
	assert.Equal(t, added.ID, got.ID)

	_, err = s.Get("zzzz")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get("")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetAmbiguousPrefix(t *testing.T) {
	s := openStore(t)

	// Seventeen random IDs always share at least one leading hex digit.
	for i := 0; i < 17; i++ {
		_, err := s.Add(run(engine.OpBuild, "/data", time.Now()))
		require.NoError(t, err)
	}

	seen := map[byte]int{}
	runs, err := s.List(Filter{})
	require.NoError(t, err)
	for _, r := range runs {
		seen[r.ID[0]]++
	}
	for c, n := range seen {
		if n > 1 {
			_, err := s.Get(string(c))
			assert.ErrorIs(t, err, ErrAmbiguous)
			return
		}
	}
	t.Fatal("expected a shared prefix")
}

func TestListNewestFirstWithFilter(t *testing.T) {
	s := openStore(t)
	base := time.Now().Add(-time.Hour)

	for i, r := range []engine.Run{
		run(engine.OpBuild, "/a", base),
		run(engine.OpCompare, "/a", base.Add(time.Minute)),
		run(engine.OpCompare, "/b", base.Add(2*time.Minute)),
		run(engine.OpCompare, "/a", base.Add(3*time.Minute)),
	} {
		r.Files = i
		require.NoError(t, s.Record(r))
	}

	all, err := s.List(Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []int{3, 2, 1, 0}, []int{all[0].Files, all[1].Files, all[2].Files, all[3].Files})

	compares, err := s.List(Filter{Root: "/a", Op: engine.OpCompare})
	require.NoError(t, err)
	require.Len(t, compares, 2)
	assert.Equal(t, 3, compares[0].Files)

	limited, err := s.List(Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	last, err := s.Last("/a", engine.OpBuild)
	require.NoError(t, err)
	assert.Equal(t, 0, last.Files)

	_, err = s.Last("/c", engine.OpBuild)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordFillsStartTime(t *testing.T) {
	s := openStore(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	added, err := s.Add(engine.Run{Op: engine.OpBuild, Root: "/a"})
	require.NoError(t, err)
	assert.True(t, added.StartedAt.Equal(fixed))
}

func TestPrune(t *testing.T) {
	s := openStore(t)
	now := time.Now()

	old, err := s.Add(run(engine.OpBuild, "/a", now.Add(-48*time.Hour)))
	require.NoError(t, err)
	recent, err := s.Add(run(engine.OpCompare, "/a", now.Add(-time.Hour)))
	require.NoError(t, err)

	n, err := s.PruneOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(recent.ID)
	assert.NoError(t, err)

	n, err = s.PruneOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClear(t *testing.T) {
	s := openStore(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Record(run(engine.OpBuild, "/a", time.Now())))
	}

	require.NoError(t, s.Clear())

	runs, err := s.List(Filter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NotNil(t, s.GetSchema())
}

func TestReopenKeepsRuns(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	added, err := s.Add(run(engine.OpBuild, "/a", time.Now()))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(added.ID)
	require.NoError(t, err)
	assert.Equal(t, "/a", got.Root)
}

func TestSchema(t *testing.T) {
	s, err := OpenInMemory()
	require.NoError(t, err)
	defer s.Close()

	schema := s.GetSchema()
	require.NotNil(t, schema)
	assert.Equal(t, CurrentSchemaVersion, schema.Version)

	require.NoError(t, s.SetSchema(&Schema{Version: CurrentSchemaVersion + 1}))
	assert.ErrorIs(t, s.checkSchema(), ErrSchemaTooNew)
}

func TestRetentionStillListsFreshRuns(t *testing.T) {
	s := openStore(t, WithRetention(time.Hour))
	require.NoError(t, s.Record(run(engine.OpBuild, "/a", time.Now())))

	runs, err := s.List(Filter{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
