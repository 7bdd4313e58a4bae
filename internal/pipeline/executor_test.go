package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bgricker/matchpipe/internal/stage"
)

type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func recordingStage(name string, calls *[]string, fn stage.RunFunc) stage.Stage {
	return stage.NewFunc(name, func(ctx context.Context, input any, elapsed time.Duration) (any, error) {
		*calls = append(*calls, name)
		if fn == nil {
			return input, nil
		}
		return fn(ctx, input, elapsed)
	})
}

func TestExecuteThreadsPayloads(t *testing.T) {
	var calls []string
	stages := []stage.Stage{
		recordingStage("fetch", &calls, func(context.Context, any, time.Duration) (any, error) {
			return map[string]any{"matches": []any{"a", "b"}}, nil
		}),
		recordingStage("summarize", &calls, func(_ context.Context, in any, _ time.Duration) (any, error) {
			m := in.(map[string]any)
			return map[string]any{"total_matches": float64(len(m["matches"].([]any)))}, nil
		}),
	}
	e := New(Options{Stages: stages, NewRunID: func() string { return "run-1" }})

	res := e.Execute(context.Background(), 7)
	if !res.Success || res.Aborted || res.FailedStage != 0 {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Cycle != 7 || res.RunID != "run-1" {
		t.Fatalf("unexpected identity %d/%s", res.Cycle, res.RunID)
	}
	if res.Records != 2 {
		t.Fatalf("expected 2 records, got %d", res.Records)
	}
	if len(res.Stages) != 2 || res.Stages[0].Ordinal != 1 || res.Stages[1].Ordinal != 2 {
		t.Fatalf("unexpected outcomes %+v", res.Stages)
	}
}

func TestExecuteStopsAtFirstFailure(t *testing.T) {
	var calls []string
	stages := []stage.Stage{
		recordingStage("one", &calls, nil),
		recordingStage("two", &calls, func(context.Context, any, time.Duration) (any, error) {
			return nil, errors.New("boom")
		}),
		recordingStage("three", &calls, nil),
		recordingStage("four", &calls, nil),
		recordingStage("five", &calls, nil),
	}
	e := New(Options{Stages: stages})

	res := e.Execute(context.Background(), 1)
	if res.Success || res.Aborted {
		t.Fatalf("expected failure, got %+v", res)
	}
	if res.FailedStage != 2 {
		t.Fatalf("expected failed stage 2, got %d", res.FailedStage)
	}
	if len(calls) != 2 || len(res.Stages) != 2 {
		t.Fatalf("stages after the failure must not run, got %v", calls)
	}
	if res.Stages[1].Error != "boom" {
		t.Fatalf("expected boom, got %q", res.Stages[1].Error)
	}
	if res.Records != 0 {
		t.Fatalf("failed cycle must not report records")
	}
}

func TestExecuteAbortsOnShutdown(t *testing.T) {
	var calls []string
	sd := NewShutdown()
	stages := []stage.Stage{
		recordingStage("one", &calls, nil),
		recordingStage("two", &calls, nil),
		recordingStage("three", &calls, func(_ context.Context, in any, _ time.Duration) (any, error) {
			sd.Request()
			return in, nil
		}),
		recordingStage("four", &calls, nil),
		recordingStage("five", &calls, nil),
	}
	e := New(Options{Stages: stages, Shutdown: sd})

	res := e.Execute(context.Background(), 1)
	if !res.Aborted || res.Success {
		t.Fatalf("expected aborted cycle, got %+v", res)
	}
	if len(calls) != 3 {
		t.Fatalf("expected stages 1-3 to run, got %v", calls)
	}
	if res.FailedStage != 0 {
		t.Fatalf("aborted cycle must not name a failed stage")
	}
}

func TestExecuteRecordsTimeWhenAbortedBeforeFirstStage(t *testing.T) {
	clock := &stepClock{now: time.Unix(0, 0), step: 250 * time.Millisecond}
	sd := NewShutdown()
	sd.Request()
	var calls []string
	e := New(Options{Stages: []stage.Stage{recordingStage("one", &calls, nil)}, Shutdown: sd, Now: clock.Now})

	res := e.Execute(context.Background(), 1)
	if !res.Aborted || len(res.Stages) != 0 || len(calls) != 0 {
		t.Fatalf("expected abort before stage 1, got %+v", res)
	}
	if res.Ran() {
		t.Fatalf("cycle with no stages must not count as ran")
	}
	if res.TotalTime != 250*time.Millisecond || res.TotalTimeMS != 250 {
		t.Fatalf("expected total time to be recorded, got %s", res.TotalTime)
	}
}

func TestExecuteTotalTimeSpansCycle(t *testing.T) {
	clock := &stepClock{now: time.Unix(0, 0), step: time.Second}
	var calls []string
	e := New(Options{
		Stages: []stage.Stage{recordingStage("one", &calls, nil), recordingStage("two", &calls, nil)},
		Now:    clock.Now,
	})

	res := e.Execute(context.Background(), 1)
	// entry, 2 clock reads per stage, exit
	if res.TotalTime != 5*time.Second {
		t.Fatalf("expected 5s total time, got %s", res.TotalTime)
	}
	var sum time.Duration
	for _, o := range res.Stages {
		sum += o.Duration
	}
	if sum > res.TotalTime {
		t.Fatalf("stage durations %s exceed total %s", sum, res.TotalTime)
	}
}

func TestExecuteKeepsPipelineOrdinals(t *testing.T) {
	var calls []string
	stages := []stage.Stage{
		recordingStage("merge", &calls, nil),
		recordingStage("render", &calls, func(context.Context, any, time.Duration) (any, error) {
			return nil, errors.New("render failed")
		}),
	}
	exec := New(Options{Stages: stages, Ordinals: []int{2, 6}})

	res := exec.Execute(context.Background(), 1)
	if res.FailedStage != 6 {
		t.Fatalf("expected failure reported at stage 6, got %d", res.FailedStage)
	}
	if res.Stages[0].Ordinal != 2 || res.Stages[1].Ordinal != 6 {
		t.Fatalf("unexpected ordinals %+v", res.Stages)
	}
}

func TestRecordsFrom(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    int
	}{
		{"nil", nil, 0},
		{"string", "hello", 0},
		{"total matches", map[string]any{"total_matches": float64(12)}, 12},
		{"int", map[string]any{"total_matches": 4}, 4},
		{"match count fallback", map[string]any{"match_count": int64(9)}, 9},
		{"records fallback", map[string]any{"records": json.Number("3")}, 3},
		{"non numeric", map[string]any{"total_matches": "many"}, 0},
		{"zero defers to next key", map[string]any{"total_matches": 0, "match_count": 5}, 5},
	}
	for _, tt := range tests {
		if got := recordsFrom(tt.payload); got != tt.want {
			t.Fatalf("%s: recordsFrom = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestShutdownRequestOnce(t *testing.T) {
	sd := NewShutdown()
	if sd.Requested() {
		t.Fatalf("new token must not be requested")
	}
	if !sd.Request() {
		t.Fatalf("first request must report true")
	}
	if sd.Request() {
		t.Fatalf("second request must report false")
	}
	select {
	case <-sd.Done():
	default:
		t.Fatalf("done channel must be closed after request")
	}
}
