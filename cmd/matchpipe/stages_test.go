package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/bgricker/matchpipe/internal/output"
)

func TestStagesCommandPretty(t *testing.T) {
	workspace(t, pipelineYAML)

	out, _, err := execute(t, "stages")
	if err != nil {
		t.Fatalf("command execute: %v", err)
	}

	want := `Stage 1 Data Fetcher [builtin]
    • json_file
Stage 2 Data Merger [command]
    • cat > merged.json
Stage 3 tally [builtin]
    • tally
`
	if diff := diffStrings(want, out); diff != "" {
		t.Fatalf("unexpected output:\n%s", diff)
	}
}

func TestStagesCommandFilters(t *testing.T) {
	workspace(t, pipelineYAML)

	out, _, err := execute(t, "stages", "--only", "/^Data/", "--skip", "fetch")
	if err != nil {
		t.Fatalf("command execute: %v", err)
	}
	if strings.TrimSpace(out) != "Stage 2 Data Merger [command]\n    • cat > merged.json" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestStagesCommandJSON(t *testing.T) {
	workspace(t, pipelineYAML)

	out, _, err := execute(t, "stages", "--format", "json")
	if err != nil {
		t.Fatalf("command execute: %v", err)
	}
	var rep output.Report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if rep.Config != ".matchpipe.yml" {
		t.Fatalf("expected config path, got %q", rep.Config)
	}
	if len(rep.Stages) != 3 || rep.Stages[1].Kind != "command" {
		t.Fatalf("unexpected stages %+v", rep.Stages)
	}
}

func TestStagesCommandExplicitConfig(t *testing.T) {
	workspace(t, pipelineYAML)

	_, _, err := execute(t, "stages", "--config", "missing.yml")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected missing config error, got %v", err)
	}
}
