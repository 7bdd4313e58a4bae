// Package metrics keeps process-lifetime counters for the pipeline loop and
// optionally mirrors them into a Prometheus registry.
package metrics

import (
	"sync"
	"time"

	"github.com/bgricker/matchpipe/internal/report"
)

// Snapshot is a point-in-time copy of the accumulated counters.
type Snapshot struct {
	Cycles           uint64
	Succeeded        uint64
	Failed           uint64
	Aborted          uint64
	Runtime          time.Duration
	AverageCycleTime time.Duration
	Records          uint64
}

// SuccessRate returns the percentage of cycles that succeeded.
func (s Snapshot) SuccessRate() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Cycles) * 100
}

// Accumulator counts completed cycles. Counters are never reset.
type Accumulator struct {
	mu   sync.Mutex
	snap Snapshot
	prom *Prometheus
}

// NewAccumulator returns an empty accumulator. prom may be nil.
func NewAccumulator(prom *Prometheus) *Accumulator {
	return &Accumulator{prom: prom}
}

// Record folds one cycle result into the counters.
func (a *Accumulator) Record(res report.CycleResult) {
	a.mu.Lock()
	a.snap.Cycles++
	switch {
	case res.Success:
		a.snap.Succeeded++
		if res.Records > 0 {
			a.snap.Records += uint64(res.Records)
		}
	case res.Aborted:
		a.snap.Aborted++
	default:
		a.snap.Failed++
	}
	a.snap.Runtime += res.TotalTime
	a.snap.AverageCycleTime = a.snap.Runtime / time.Duration(a.snap.Cycles)
	a.mu.Unlock()

	if a.prom != nil {
		a.prom.observe(res)
	}
}

// SetConsecutiveFailures publishes the scheduler's current failure streak.
func (a *Accumulator) SetConsecutiveFailures(n int) {
	if a.prom != nil {
		a.prom.consecutiveFailures.Set(float64(n))
	}
}

// Snapshot returns a copy of the counters.
func (a *Accumulator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap
}
