package filter

import (
	"testing"

	"github.com/bgricker/matchpipe/internal/config"
)

func pipelineConfigs() []config.StageConfig {
	return []config.StageConfig{
		{Name: "Data Fetcher", Builtin: "http_json"},
		{Name: "Data Merger", Run: "python3 merge.py"},
		{Name: "Summary Generator", Run: "python3 summarize.py"},
		{Builtin: "tally"},
	}
}

func TestStagesOnly(t *testing.T) {
	only, err := Compile([]string{"merge"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	sel := Stages(pipelineConfigs(), only, nil)
	if len(sel) != 1 {
		t.Fatalf("expected 1 stage, got %d", len(sel))
	}
	if sel[0].Ordinal != 2 || sel[0].Config.Name != "Data Merger" {
		t.Fatalf("expected Data Merger at ordinal 2, got %+v", sel[0])
	}
}

func TestStagesOnlyAndSkip(t *testing.T) {
	only, err := Compile([]string{"/python3/"})
	if err != nil {
		t.Fatalf("compile only: %v", err)
	}
	skip, err := Compile([]string{"summary"})
	if err != nil {
		t.Fatalf("compile skip: %v", err)
	}

	sel := Stages(pipelineConfigs(), only, skip)
	if len(sel) != 1 || sel[0].Config.Name != "Data Merger" {
		t.Fatalf("expected only Data Merger, got %+v", sel)
	}
}

func TestStagesMatchesBuiltin(t *testing.T) {
	skip, err := Compile([]string{"TALLY"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	sel := Stages(pipelineConfigs(), nil, skip)
	if len(sel) != 3 {
		t.Fatalf("expected tally skipped, got %d stages", len(sel))
	}
	if got := Configs(sel); len(got) != 3 || got[2].Name != "Summary Generator" {
		t.Fatalf("unexpected configs %+v", got)
	}
}

func TestCompileErrors(t *testing.T) {
	if _, err := Compile([]string{"/(/"}); err == nil {
		t.Fatalf("expected compile error")
	}
	patterns, err := Compile([]string{" ", "fetch"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(patterns) != 1 || patterns[0].String() != "fetch" {
		t.Fatalf("expected blank patterns dropped, got %v", patterns)
	}
}
