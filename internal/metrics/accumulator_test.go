package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/bgricker/matchpipe/internal/report"
)

func TestRecordSuccesses(t *testing.T) {
	acc := NewAccumulator(nil)
	durations := []time.Duration{2 * time.Second, 4 * time.Second, 9 * time.Second}
	for i, d := range durations {
		acc.Record(report.CycleResult{Cycle: uint64(i + 1), Success: true, TotalTime: d, Records: 5})
	}

	s := acc.Snapshot()
	if s.Cycles != 3 || s.Succeeded != 3 {
		t.Fatalf("expected 3 cycles and 3 successes, got %+v", s)
	}
	if s.Runtime != 15*time.Second {
		t.Fatalf("expected runtime 15s, got %s", s.Runtime)
	}
	if s.AverageCycleTime != 5*time.Second {
		t.Fatalf("expected average 5s, got %s", s.AverageCycleTime)
	}
	if s.Records != 15 {
		t.Fatalf("expected 15 records, got %d", s.Records)
	}
	if s.SuccessRate() != 100 {
		t.Fatalf("expected 100%% success rate, got %f", s.SuccessRate())
	}
}

func TestRecordFailedAndAborted(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.Record(report.CycleResult{Success: true, TotalTime: time.Second})
	acc.Record(report.CycleResult{FailedStage: 2, TotalTime: time.Second, Records: 99})
	acc.Record(report.CycleResult{Aborted: true, TotalTime: time.Second})

	s := acc.Snapshot()
	if s.Cycles != 3 || s.Succeeded != 1 || s.Failed != 1 || s.Aborted != 1 {
		t.Fatalf("unexpected counters %+v", s)
	}
	if s.Records != 0 {
		t.Fatalf("failed cycles must not add records, got %d", s.Records)
	}
	if s.Succeeded+s.Failed+s.Aborted != s.Cycles {
		t.Fatalf("outcome counters must sum to cycles")
	}
}

func TestSnapshotIsStable(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.Record(report.CycleResult{Success: true, TotalTime: time.Second})
	first := acc.Snapshot()
	second := acc.Snapshot()
	if first != second {
		t.Fatalf("reading a snapshot must not change counters: %+v vs %+v", first, second)
	}
	if NewAccumulator(nil).Snapshot().SuccessRate() != 0 {
		t.Fatalf("empty accumulator must report 0%% success")
	}
}

func TestConcurrentReaders(t *testing.T) {
	acc := NewAccumulator(NewPrometheus())
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = acc.Snapshot()
			}
		}()
	}
	for i := 0; i < 100; i++ {
		acc.Record(report.CycleResult{Success: true, TotalTime: time.Millisecond})
	}
	wg.Wait()
	if acc.Snapshot().Cycles != 100 {
		t.Fatalf("expected 100 cycles")
	}
}

func TestPrometheusMirror(t *testing.T) {
	prom := NewPrometheus()
	acc := NewAccumulator(prom)
	acc.Record(report.CycleResult{
		Success:   true,
		Records:   7,
		TotalTime: 3 * time.Second,
		Stages: []report.StageOutcome{
			{Ordinal: 1, Name: "fetch", Success: true, Duration: time.Second},
		},
	})
	acc.Record(report.CycleResult{
		FailedStage: 1,
		Stages:      []report.StageOutcome{{Ordinal: 1, Name: "fetch", Error: "boom"}},
	})
	acc.SetConsecutiveFailures(1)

	families, err := prom.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}

	cycles := byName["matchpipe_cycles_total"]
	if cycles == nil || len(cycles.GetMetric()) != 2 {
		t.Fatalf("expected success and failed series, got %v", cycles)
	}
	if got := byName["matchpipe_records_total"].GetMetric()[0].GetCounter().GetValue(); got != 7 {
		t.Fatalf("expected 7 records, got %f", got)
	}
	if got := byName["matchpipe_stage_failures_total"].GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Fatalf("expected 1 stage failure, got %f", got)
	}
	if got := byName["matchpipe_consecutive_failures"].GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Fatalf("expected gauge 1, got %f", got)
	}

	srv := httptest.NewServer(prom.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `matchpipe_cycles_total{result="success"} 1`) {
		t.Fatalf("expected cycles series in exposition, got:\n%s", body)
	}
}
