package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jamesainslie/treesum/pkg/treesum/engine"
)

// TemplateReporter renders a report with a Go text/template.
type TemplateReporter struct {
	templateStr string
	ext         string
	template    *template.Template
	mu          sync.Mutex
}

// templateData is the data passed to report templates.
type templateData struct {
	Meta       Metadata
	Diff       *engine.DiffResult
	Status     engine.Severity
	Summary    []summaryRow
	Categories []category
	Limit      int
}

// NewTemplateReporter returns a reporter for templateStr writing files with
// extension ext.
func NewTemplateReporter(templateStr, ext string) *TemplateReporter {
	return &TemplateReporter{templateStr: templateStr, ext: ext}
}

// templateFuncs returns the custom template functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// date formats a time.Time using the provided layout.
		// Usage: {{date .Meta.ScannedAt "2006-01-02"}}
		"date": func(t time.Time, layout string) string {
			if t.IsZero() {
				return ""
			}
			return t.Format(layout)
		},

		// head returns at most n paths.
		// Usage: {{range head .Paths 50}}
		"head": func(paths []string, n int) []string {
			shown, _ := head(paths, n)
			return shown
		},

		// more returns how many paths head leaves out.
		"more": func(paths []string, n int) int {
			_, more := head(paths, n)
			return more
		},

		"inc":   func(i int) int { return i + 1 },
		"comma": func(n int) string { return humanize.Comma(int64(n)) },

		// code wraps a path in a markdown code span.
		"code": func(s string) string {
			return "`" + strings.ReplaceAll(s, "`", "'") + "`"
		},
	}
}

// Extension implements Reporter.
func (r *TemplateReporter) Extension() string { return r.ext }

// Render implements Reporter.
func (r *TemplateReporter) Render(w io.Writer, d *engine.DiffResult, meta Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.template == nil {
		tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(r.templateStr)
		if err != nil {
			return fmt.Errorf("parsing report template: %w", err)
		}
		r.template = tmpl
	}

	return r.template.Execute(w, templateData{
		Meta:       meta,
		Diff:       d,
		Status:     d.Status(),
		Summary:    summaryRows(d),
		Categories: categories(d),
		Limit:      ListLimit,
	})
}

// markdownTemplate is the markdown document layout.
const markdownTemplate = `# treesum verification report

| | |
|---|---|
| Scanned | {{date .Meta.ScannedAt "2006-01-02 15:04:05"}} |
| Root | {{code .Meta.Root}} |
| Manifest | {{code .Meta.ManifestPath}} |
| Algorithm | {{.Meta.Algorithm}} |
{{- if .Meta.GeneratedAt}}
| Manifest built | {{.Meta.GeneratedAt}} |
{{- end}}
| Status | **{{.Status}}** |
{{- if .Diff.Aborted}}

> The compare was aborted before every entry was checked.
{{- end}}

## Summary

| Item | Count |
|---|---:|
{{- range .Summary}}
| {{.Label}} | {{comma .Count}} |
{{- end}}
{{range $c := .Categories}}
## {{$c.Title}}
{{if not $c.Paths}}
None.
{{else}}
| # | Path |
|---:|---|
{{- range $i, $p := head $c.Paths $.Limit}}
| {{inc $i}} | {{code $p}} |
{{- end}}
{{- with more $c.Paths $.Limit}}

_{{.}} more not listed._
{{- end}}
{{end}}{{end}}`

func init() {
	Register("markdown", func() Reporter {
		return NewTemplateReporter(markdownTemplate, ".md")
	})
}

// Ensure TemplateReporter implements Reporter.
var _ Reporter = (*TemplateReporter)(nil)
