package report

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesainslie/treesum/pkg/treesum/engine"
	"github.com/jamesainslie/treesum/pkg/treesum/ignore"
	"github.com/jamesainslie/treesum/pkg/treesum/manifest"
)

// FallbackFormat is the format used when the requested one fails.
const FallbackFormat = "text"

// TimestampLayout is the timestamp part of report file names.
const TimestampLayout = "20060102-150405"

// FileName returns the report file name for a compare finished at t.
// The result always matches ignore.IsReport.
func FileName(t time.Time, ext string) string {
	return ignore.ReportPrefix + t.Format(TimestampLayout) + ext
}

// Write renders d in format and writes it into root. If the format is
// unknown or fails to render or write, a text report is written instead and
// the original failure is logged. The error is non-nil only when the text
// fallback fails too.
func Write(root, format string, d *engine.DiffResult, meta Metadata) (string, error) {
	return write(root, format, d, meta, DefaultRegistry)
}

func write(root, format string, d *engine.DiffResult, meta Metadata, reg *Registry) (string, error) {
	if meta.ScannedAt.IsZero() {
		meta.ScannedAt = time.Now()
	}

	r, err := reg.Get(format)
	if err == nil {
		var path string
		path, err = writeWith(root, r, d, meta)
		if err == nil {
			return path, nil
		}
	}
	if format == FallbackFormat {
		return "", err
	}
	logger.Warn("report format failed, writing text instead", "format", format, "error", err)

	path, fallbackErr := writeWith(root, &TextReporter{Limit: ListLimit}, d, meta)
	if fallbackErr != nil {
		return "", errors.Join(err, fallbackErr)
	}
	return path, nil
}

// writeWith renders into memory first so a failing reporter leaves no
// partial file behind.
func writeWith(root string, r Reporter, d *engine.DiffResult, meta Metadata) (string, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, d, meta); err != nil {
		return "", fmt.Errorf("rendering report: %w", err)
	}

	path, f, err := create(root, meta.ScannedAt, r.Extension())
	if err != nil {
		return "", err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("writing report: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("closing report: %w", err)
	}
	logger.Info("report written", "path", path)
	return path, nil
}

// create opens a new report file. A name already taken within the same
// second gets a numeric suffix before the extension.
func create(root string, t time.Time, ext string) (string, *os.File, error) {
	base := FileName(t, "")
	for i := 0; i < 100; i++ {
		name := base + ext
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", base, i, ext)
		}
		path := filepath.Join(root, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return path, f, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", nil, fmt.Errorf("creating report: %w", err)
		}
	}
	return "", nil, fmt.Errorf("creating report in %s: too many reports in one second", root)
}

// Writer writes a report after every compare. It implements
// engine.ReportWriter.
type Writer struct {
	// Format is the registry name of the reporter. Empty means markdown.
	Format string

	// Tool is recorded in the report metadata.
	Tool string

	// Now returns the scan time. Nil uses time.Now.
	Now func() time.Time
}

// WriteReport implements engine.ReportWriter.
func (w *Writer) WriteReport(root string, d *engine.DiffResult, m *manifest.Manifest) (string, error) {
	format := w.Format
	if format == "" {
		format = "markdown"
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	meta := Metadata{
		Tool:         w.Tool,
		Root:         root,
		ManifestPath: manifest.Path(root),
		Algorithm:    m.Algorithm,
		GeneratedAt:  m.GeneratedAt,
		ScannedAt:    now(),
	}
	return Write(root, format, d, meta)
}

// Ensure Writer implements engine.ReportWriter.
var _ engine.ReportWriter = (*Writer)(nil)
