package output

import (
	"encoding/json"
	"io"

	"github.com/bgricker/matchpipe/internal/report"
)

// JSONRenderer emits structured execution data.
type JSONRenderer struct {
	out io.Writer
}

// NewJSON creates a JSON renderer writing to out.
func NewJSON(out io.Writer) *JSONRenderer {
	return &JSONRenderer{out: out}
}

// Report captures JSON output schema. Only the sections relevant to the
// command are populated.
type Report struct {
	Config   string              `json:"config,omitempty"`
	Stages   []report.StageInfo  `json:"stages,omitempty"`
	Cycle    *report.CycleResult `json:"cycle,omitempty"`
	Status   *report.Status      `json:"status,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
}

// Render encodes the report as JSON.
func (j *JSONRenderer) Render(report Report) error {
	enc := json.NewEncoder(j.out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
