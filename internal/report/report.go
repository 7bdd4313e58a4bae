package report

import "time"

// StageOutcome captures the outcome of a single stage invocation.
type StageOutcome struct {
	Ordinal    int           `json:"ordinal"`
	Name       string        `json:"name"`
	Success    bool          `json:"success"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Payload    any           `json:"-"`
	Error      string        `json:"error,omitempty"`
	Trace      string        `json:"trace,omitempty"`
}

// CycleResult aggregates one pass over every stage.
type CycleResult struct {
	Cycle       uint64         `json:"cycle"`
	RunID       string         `json:"run_id"`
	StartedAt   time.Time      `json:"started_at"`
	Stages      []StageOutcome `json:"stages"`
	Success     bool           `json:"success"`
	Aborted     bool           `json:"aborted"`
	FailedStage int            `json:"failed_stage,omitempty"`
	TotalTime   time.Duration  `json:"-"`
	TotalTimeMS int64          `json:"total_time_ms"`
	Records     int            `json:"records"`
}

// Ran reports whether at least one stage was invoked.
func (c CycleResult) Ran() bool {
	return len(c.Stages) > 0
}

// Payload returns the payload produced by the last successful stage.
func (c CycleResult) Payload() any {
	for i := len(c.Stages) - 1; i >= 0; i-- {
		if c.Stages[i].Success {
			return c.Stages[i].Payload
		}
	}
	return nil
}

// Status is the aggregate report emitted periodically and at shutdown.
type Status struct {
	State              string        `json:"state"`
	Uptime             time.Duration `json:"-"`
	UptimeMS           int64         `json:"uptime_ms"`
	Cycles             uint64        `json:"cycles"`
	Succeeded          uint64        `json:"succeeded"`
	Failed             uint64        `json:"failed"`
	Aborted            uint64        `json:"aborted"`
	SuccessRate        float64       `json:"success_rate"`
	AverageCycleTime   time.Duration `json:"-"`
	AverageCycleTimeMS int64         `json:"average_cycle_time_ms"`
	Records            uint64        `json:"records"`
	Errors             uint64        `json:"errors"`
	LastSuccess        time.Time     `json:"last_success"`
}

// StageInfo describes a configured stage for listings.
type StageInfo struct {
	Ordinal int    `json:"ordinal"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Detail  string `json:"detail,omitempty"`
}
