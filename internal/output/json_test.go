package output

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/bgricker/matchpipe/internal/report"
)

func TestJSONRenderer(t *testing.T) {
	cycle := report.CycleResult{
		Cycle:       1,
		RunID:       "run-1",
		Success:     true,
		TotalTime:   1500 * time.Millisecond,
		TotalTimeMS: 1500,
		Stages:      []report.StageOutcome{{Ordinal: 1, Name: "fetch", Success: true, DurationMS: 10, Payload: map[string]any{"secret": "x"}}},
		Records:     4,
	}
	rep := Report{
		Config:   ".matchpipe.yml",
		Stages:   []report.StageInfo{{Ordinal: 1, Name: "fetch", Kind: "builtin"}},
		Cycle:    &cycle,
		Warnings: []string{"stage 1 (fetch): note"},
	}

	buf := &bytes.Buffer{}
	if err := NewJSON(buf).Render(rep); err != nil {
		t.Fatalf("render json: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if _, ok := decoded["status"]; ok {
		t.Fatalf("unset sections must be omitted")
	}
	c := decoded["cycle"].(map[string]any)
	if c["run_id"] != "run-1" || c["total_time_ms"] != float64(1500) || c["records"] != float64(4) {
		t.Fatalf("cycle mismatch: %+v", c)
	}
	st := c["stages"].([]any)[0].(map[string]any)
	if _, ok := st["payload"]; ok {
		t.Fatalf("payloads must not be serialized")
	}
	if len(decoded["warnings"].([]any)) != 1 {
		t.Fatalf("expected warnings serialized")
	}
}
