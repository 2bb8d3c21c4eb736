package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jamesainslie/treesum/pkg/treesum/hasher"
	"github.com/jamesainslie/treesum/pkg/treesum/ignore"
)

// document is the on-disk shape. The digest key of each entry is the
// algorithm name, so exactly one of the digest fields is set.
type document struct {
	Tool        string      `json:"tool"`
	Algorithm   string      `json:"algorithm"`
	GeneratedAt string      `json:"generated_at"`
	RootHint    string      `json:"root_hint"`
	Entries     []entryJSON `json:"entries"`
}

type entryJSON struct {
	Path    string `json:"path"`
	MD5     string `json:"md5,omitempty"`
	SHA1    string `json:"sha1,omitempty"`
	SHA256  string `json:"sha256,omitempty"`
	SHA3256 string `json:"sha3-256,omitempty"`
	XXH3    string `json:"xxh3,omitempty"`
	Size    *int64 `json:"size"`
	MTime   int64  `json:"mtime"`
}

func (e *entryJSON) digest(algo string) string {
	switch algo {
	case "md5":
		return e.MD5
	case "sha1":
		return e.SHA1
	case "sha256":
		return e.SHA256
	case "sha3-256":
		return e.SHA3256
	case "xxh3":
		return e.XXH3
	}
	return ""
}

func (e *entryJSON) setDigest(algo, digest string) {
	switch algo {
	case "md5":
		e.MD5 = digest
	case "sha1":
		e.SHA1 = digest
	case "sha256":
		e.SHA256 = digest
	case "sha3-256":
		e.SHA3256 = digest
	case "xxh3":
		e.XXH3 = digest
	}
}

// Path returns the manifest location for root.
func Path(root string) string {
	return filepath.Join(root, ignore.ManifestName)
}

// Exists reports whether root already holds a manifest.
func Exists(root string) bool {
	info, err := os.Stat(Path(root))
	return err == nil && info.Mode().IsRegular()
}

// Locate returns the manifest path under root. When there is none it returns
// ErrNotFound, or a *LegacyOnlyError if a legacy checksum file is present.
func Locate(root string) (string, error) {
	p := Path(root)
	if _, err := os.Stat(p); err == nil {
		return p, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to stat manifest: %w", err)
	}

	for _, name := range ignore.LegacyNames {
		legacy := filepath.Join(root, name)
		if _, err := os.Stat(legacy); err == nil {
			return "", &LegacyOnlyError{Path: legacy}
		}
	}
	return "", fmt.Errorf("%s: %w", root, ErrNotFound)
}

// Load reads and validates the manifest at path. Digests are normalized to
// lowercase.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	m, err := Decode(data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return m, nil
}

// Decode parses and validates a manifest document.
func Decode(data []byte) (*Manifest, error) {
	var doc struct {
		document
		Entries *[]entryJSON `json:"entries"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	if doc.Algorithm == "" {
		return nil, errors.New("missing algorithm")
	}
	algo, err := hasher.Lookup(doc.Algorithm)
	if err != nil {
		return nil, err
	}
	if doc.Entries == nil {
		return nil, errors.New("missing entries")
	}

	m := &Manifest{
		Tool:        doc.Tool,
		Algorithm:   algo.Name,
		GeneratedAt: doc.GeneratedAt,
		RootHint:    doc.RootHint,
		Entries:     make([]FileRecord, 0, len(*doc.Entries)),
	}
	for i, e := range *doc.Entries {
		if e.Size == nil {
			return nil, fmt.Errorf("entry %d (%s): missing size", i, e.Path)
		}
		m.Entries = append(m.Entries, FileRecord{
			Path:    e.Path,
			Digest:  strings.ToLower(e.digest(algo.Name)),
			Size:    *e.Size,
			ModTime: e.MTime,
		})
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Encode renders the manifest as indented JSON with entries sorted by path.
func Encode(m *Manifest) ([]byte, error) {
	entries := append([]FileRecord(nil), m.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	doc := document{
		Tool:        m.Tool,
		Algorithm:   m.Algorithm,
		GeneratedAt: m.GeneratedAt,
		RootHint:    m.RootHint,
		Entries:     make([]entryJSON, len(entries)),
	}
	for i, e := range entries {
		size := e.Size
		doc.Entries[i] = entryJSON{Path: e.Path, Size: &size, MTime: e.ModTime}
		doc.Entries[i].setDigest(m.Algorithm, e.Digest)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// Validate checks the algorithm, every entry and path uniqueness.
func (m *Manifest) Validate() error {
	algo, err := hasher.Lookup(m.Algorithm)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(m.Entries))
	for i, e := range m.Entries {
		switch {
		case e.Path == "":
			return fmt.Errorf("entry %d: empty path", i)
		case strings.HasPrefix(e.Path, "/") || strings.Contains(e.Path, "\\"):
			return fmt.Errorf("entry %d: path %q is not relative with forward slashes", i, e.Path)
		case path.Clean(e.Path) != e.Path || e.Path == "." || e.Path == ".." || strings.HasPrefix(e.Path, "../"):
			return fmt.Errorf("entry %d: path %q is not a clean path inside the root", i, e.Path)
		case !algo.ValidDigest(e.Digest):
			return fmt.Errorf("entry %d (%s): invalid %s digest %q", i, e.Path, algo.Name, e.Digest)
		case e.Size < 0:
			return fmt.Errorf("entry %d (%s): negative size %d", i, e.Path, e.Size)
		}
		if _, dup := seen[e.Path]; dup {
			return fmt.Errorf("duplicate path %q", e.Path)
		}
		seen[e.Path] = struct{}{}
	}
	return nil
}

// Write validates m and replaces the manifest under root atomically: the
// document goes to a temp file which is synced and renamed over the target.
func Write(root string, m *Manifest) (string, error) {
	if err := m.Validate(); err != nil {
		return "", fmt.Errorf("refusing to write manifest: %w", err)
	}
	data, err := Encode(m)
	if err != nil {
		return "", err
	}

	target := Path(root)
	tmpPath := filepath.Join(root, ignore.ManifestTempName)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		// Cleanup temp file on rename failure
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}
	return target, nil
}
