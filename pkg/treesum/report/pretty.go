package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jamesainslie/treesum/pkg/treesum/engine"
)

// PrettyReporter renders a styled terminal summary with lipgloss.
type PrettyReporter struct {
	// Limit caps the paths listed per category. Zero lists them all.
	Limit int
}

// Extension implements Reporter.
func (r *PrettyReporter) Extension() string { return ".txt" }

// Render implements Reporter.
func (r *PrettyReporter) Render(w io.Writer, d *engine.DiffResult, meta Metadata) error {
	var sb strings.Builder

	sb.WriteString(r.formatHeader(meta))
	sb.WriteString("\n")
	sb.WriteString(r.formatSummary(d))

	for _, c := range categories(d) {
		if len(c.Paths) == 0 {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(r.formatCategory(c, d))
	}

	sb.WriteString(r.formatFooter(d, meta))
	sb.WriteString("\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

// formatHeader builds the header box with compare metadata.
func (r *PrettyReporter) formatHeader(meta Metadata) string {
	line := func(label, value string) string {
		return fmt.Sprintf("%s %s", LabelStyle.Render(label), ValueStyle.Render(value))
	}
	lines := []string{
		TitleStyle.Render("treesum verify"),
		line("Root:     ", meta.Root),
		line("Manifest: ", meta.ManifestPath),
		line("Algorithm:", meta.Algorithm),
	}
	if !meta.ScannedAt.IsZero() {
		lines = append(lines, line("Scanned:  ", meta.ScannedAt.Format("2006-01-02 15:04:05")))
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

// formatSummary builds the aligned count table.
func (r *PrettyReporter) formatSummary(d *engine.DiffResult) string {
	var sb strings.Builder
	for _, row := range summaryRows(d) {
		count := humanize.Comma(int64(row.Count))
		style := CountStyle
		if row.Count > 0 && row.Label != "OK" && row.Label != "Total in manifest" {
			style = ErrorStyle.Bold(true)
			if row.Label == "Extra" {
				style = WarningStyle.Bold(true)
			}
		}
		sb.WriteString(fmt.Sprintf("  %s %s\n", LabelStyle.Render(padRight(row.Label, 18)), style.Render(padLeft(count, 8))))
	}
	return sb.String()
}

// formatCategory lists the paths of one category.
func (r *PrettyReporter) formatCategory(c category, d *engine.DiffResult) string {
	var sb strings.Builder
	titleStyle := ErrorStyle.Bold(true)
	if c.Key == "extra" {
		titleStyle = WarningStyle.Bold(true)
	}
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s (%d)", c.Title, len(c.Paths))))
	sb.WriteString("\n")

	shown, more := head(c.Paths, r.Limit)
	for _, p := range shown {
		sb.WriteString("  ")
		sb.WriteString(PathStyle.Render(p))
		if cause, ok := d.Errors[p]; ok && c.Key == "errored" {
			sb.WriteString(MutedStyle.Render("  " + cause))
		}
		sb.WriteString("\n")
	}
	if more > 0 {
		sb.WriteString(MutedStyle.Render(fmt.Sprintf("  ... %d more", more)))
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatFooter builds the verdict box.
func (r *PrettyReporter) formatFooter(d *engine.DiffResult, meta Metadata) string {
	status := d.Status()
	parts := []string{
		LabelStyle.Render("Status:") + " " + SeverityStyle(string(status)).Render(strings.ToUpper(string(status))),
	}
	if d.Aborted {
		parts = append(parts, WarningStyle.Render("aborted"))
	}
	if meta.Duration > 0 {
		parts = append(parts, LabelStyle.Render("Took:")+" "+ValueStyle.Render(formatDuration(meta.Duration.Seconds())))
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

// padLeft pads s with spaces on the left to width.
func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

// padRight pads s with spaces on the right to width.
func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatDuration formats seconds in a human-friendly way.
func formatDuration(sec float64) string {
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func init() {
	Register("pretty", func() Reporter {
		return &PrettyReporter{Limit: ListLimit}
	})
}

// Ensure PrettyReporter implements Reporter.
var _ Reporter = (*PrettyReporter)(nil)
