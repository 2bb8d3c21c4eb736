// Package ignore decides which paths treesum never tracks: its own manifest,
// legacy checksum files, its report files and user exclude patterns.
//
// Build and verify share a single Policy so the two walks cannot disagree
// about which files exist.
package ignore

import (
	"fmt"
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// Reserved file names.
const (
	// ManifestName is the manifest file written at the root of a tree.
	ManifestName = "_md5_manifest.json"

	// ManifestTempName is the scratch file used for atomic manifest writes.
	ManifestTempName = ManifestName + ".tmp"

	// ReportPrefix starts the name of every report file.
	ReportPrefix = "treesum-report-"
)

// LegacyNames are plain-text checksum files recognised but never produced.
var LegacyNames = []string{"MD5SUMS.txt", "checksums.md5"}

// ReportExtensions are the extensions of report files, matched case-insensitively.
var ReportExtensions = []string{".txt", ".md", ".json", ".yaml"}

var reservedNames = map[string]struct{}{
	ManifestName:     {},
	ManifestTempName: {},
}

func init() {
	for _, name := range LegacyNames {
		reservedNames[name] = struct{}{}
	}
}

// Policy is the ignore predicate.
type Policy struct {
	patterns []glob.Glob
	raw      []string
}

// New builds a policy with the reserved names plus the given exclude globs.
// Globs match slash-separated paths relative to the root; "*" stops at "/",
// "**" does not.
func New(excludes ...string) (*Policy, error) {
	p := &Policy{}
	for _, pattern := range excludes {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(strings.TrimSuffix(pattern, "/"), '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		p.patterns = append(p.patterns, g)
		p.raw = append(p.raw, pattern)
	}
	return p, nil
}

// Default returns a policy with no user excludes.
func Default() *Policy {
	p, _ := New()
	return p
}

// Excludes returns the user exclude patterns as given.
func (p *Policy) Excludes() []string {
	return append([]string(nil), p.raw...)
}

// Skip reports whether the slash-separated relative path is ignored.
// Reserved names and the report pattern only apply to files; exclude
// patterns also prune directories.
func (p *Policy) Skip(rel string, isDir bool) bool {
	if !isDir && IsBookkeeping(path.Base(rel)) {
		return true
	}
	for _, g := range p.patterns {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// IsReport reports whether name looks like a treesum report file.
func IsReport(name string) bool {
	if !strings.HasPrefix(name, ReportPrefix) {
		return false
	}
	lower := strings.ToLower(name)
	for _, ext := range ReportExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// IsReserved reports whether name is the manifest, its temp file or a legacy file.
func IsReserved(name string) bool {
	_, ok := reservedNames[name]
	return ok
}

// IsBookkeeping reports whether a base name belongs to the tool itself.
func IsBookkeeping(name string) bool {
	return IsReserved(name) || IsReport(name)
}
