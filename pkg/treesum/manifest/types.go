// Package manifest reads and writes the JSON manifest stored at the root of a
// tree: one digest, size and modification time per tracked file.
package manifest

import (
	"errors"
	"fmt"
	"time"
)

// Tool is the value written to the manifest "tool" field.
const Tool = "treesum"

// TimeLayout is the layout of GeneratedAt.
const TimeLayout = time.RFC3339

// Manifest is the persisted snapshot of a tree.
type Manifest struct {
	Tool        string
	Algorithm   string
	GeneratedAt string
	RootHint    string
	Entries     []FileRecord
}

// FileRecord is one tracked file.
type FileRecord struct {
	// Path is relative to the root, forward slashes.
	Path string

	// Digest is the lowercase hex digest in the manifest's algorithm.
	Digest string

	Size int64

	// ModTime is Unix seconds. It is informational and never compared.
	ModTime int64
}

// Index returns the entries keyed by path.
func (m *Manifest) Index() map[string]FileRecord {
	idx := make(map[string]FileRecord, len(m.Entries))
	for _, e := range m.Entries {
		idx[e.Path] = e
	}
	return idx
}

// GeneratedTime parses GeneratedAt. Zero time is returned when it is unset
// or not in a known layout.
func (m *Manifest) GeneratedTime() time.Time {
	for _, layout := range []string{TimeLayout, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, m.GeneratedAt); err == nil {
			return t
		}
	}
	return time.Time{}
}

// TotalSize returns the sum of all entry sizes.
func (m *Manifest) TotalSize() int64 {
	var total int64
	for _, e := range m.Entries {
		total += e.Size
	}
	return total
}

var (
	// ErrNotFound is returned by Locate when the root has no manifest.
	ErrNotFound = errors.New("no manifest found")

	// ErrLegacyOnly matches a *LegacyOnlyError.
	ErrLegacyOnly = errors.New("only a legacy checksum file was found")
)

// LegacyOnlyError is returned by Locate when the root holds a legacy checksum
// file but no manifest. Legacy files are never read.
type LegacyOnlyError struct {
	Path string
}

func (e *LegacyOnlyError) Error() string {
	return fmt.Sprintf("%s: %s; build a new manifest to verify this tree", ErrLegacyOnly, e.Path)
}

// Is makes errors.Is(err, ErrLegacyOnly) hold.
func (e *LegacyOnlyError) Is(target error) bool {
	return target == ErrLegacyOnly
}

// ParseError is returned when a manifest cannot be read or is malformed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid manifest %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
