package report

import (
	"encoding/json"
	"io"

	"github.com/jamesainslie/treesum/pkg/treesum/engine"
)

// jsonOutput is the JSON and YAML report document.
type jsonOutput struct {
	Meta    Metadata           `json:"meta" yaml:"meta"`
	Status  engine.Severity    `json:"status" yaml:"status"`
	Summary engine.Summary     `json:"summary" yaml:"summary"`
	Diff    *engine.DiffResult `json:"diff" yaml:"diff"`
}

func buildOutput(d *engine.DiffResult, meta Metadata) jsonOutput {
	return jsonOutput{
		Meta:    meta,
		Status:  d.Status(),
		Summary: d.Summary(),
		Diff:    d,
	}
}

// JSONReporter writes the full result as indented JSON. Path sets are
// never truncated.
type JSONReporter struct{}

// Extension implements Reporter.
func (r *JSONReporter) Extension() string { return ".json" }

// Render implements Reporter.
func (r *JSONReporter) Render(w io.Writer, d *engine.DiffResult, meta Metadata) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(buildOutput(d, meta))
}

func init() {
	Register("json", func() Reporter {
		return &JSONReporter{}
	})
}

// Ensure JSONReporter implements Reporter.
var _ Reporter = (*JSONReporter)(nil)
