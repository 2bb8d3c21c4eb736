package ignore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkipReservedNames(t *testing.T) {
	p := Default()

	tests := []struct {
		rel  string
		want bool
	}{
		{"_md5_manifest.json", true},
		{"nested/_md5_manifest.json", true},
		{"_md5_manifest.json.tmp", true},
		{"MD5SUMS.txt", true},
		{"sub/checksums.md5", true},
		{"treesum-report-20260101-120000.txt", true},
		{"treesum-report-20260101-120000.MD", true},
		{"deep/dir/treesum-report-x.json", true},
		{"treesum-report-notes.docx", false},
		{"my-treesum-report-20260101.txt", false},
		{"md5sums.txt", false},
		{"a.txt", false},
		{"b/c.txt", false},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Skip(tt.rel, false))
		})
	}
}

func TestReservedNamesDoNotApplyToDirectories(t *testing.T) {
	p := Default()
	assert.False(t, p.Skip("MD5SUMS.txt", true))
	assert.False(t, p.Skip("treesum-report-old.txt", true))
}

func TestExcludePatterns(t *testing.T) {
	p, err := New("node_modules", "**/*.log", "build/", "*.tmp")
	require.NoError(t, err)

	assert.True(t, p.Skip("node_modules", true))
	assert.True(t, p.Skip("a/b/debug.log", false))
	assert.True(t, p.Skip("build", true))
	assert.True(t, p.Skip("x.tmp", false))
	assert.False(t, p.Skip("sub/x.tmp", false), "single star does not cross directories")
	assert.False(t, p.Skip("src/main.go", false))
	assert.Equal(t, []string{"node_modules", "**/*.log", "build/", "*.tmp"}, p.Excludes())
}

func TestNewRejectsInvalidPattern(t *testing.T) {
	_, err := New("[unclosed")
	assert.Error(t, err)
}

func TestNewIgnoresBlankPatterns(t *testing.T) {
	p, err := New("", "  ")
	require.NoError(t, err)
	assert.Empty(t, p.Excludes())
}

func TestIsReport(t *testing.T) {
	assert.True(t, IsReport(ReportPrefix+"20260101-000000.yaml"))
	assert.False(t, IsReport("report.txt"))
}
