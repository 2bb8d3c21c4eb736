package report

import (
	"io"

	"github.com/jamesainslie/treesum/pkg/treesum/engine"
	"gopkg.in/yaml.v3"
)

// YAMLReporter writes the same document as JSONReporter in YAML.
type YAMLReporter struct{}

// Extension implements Reporter.
func (r *YAMLReporter) Extension() string { return ".yaml" }

// Render implements Reporter.
func (r *YAMLReporter) Render(w io.Writer, d *engine.DiffResult, meta Metadata) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(buildOutput(d, meta)); err != nil {
		return err
	}
	return encoder.Close()
}

func init() {
	Register("yaml", func() Reporter {
		return &YAMLReporter{}
	})
}

// Ensure YAMLReporter implements Reporter.
var _ Reporter = (*YAMLReporter)(nil)
