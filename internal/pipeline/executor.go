package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bgricker/matchpipe/internal/report"
	"github.com/bgricker/matchpipe/internal/runner"
	"github.com/bgricker/matchpipe/internal/stage"
)

// recordKeys are checked in order on the final payload for the processed-record count.
var recordKeys = []string{stage.RecordsKey, "match_count", "records"}

// Options configure an Executor.
type Options struct {
	Stages []stage.Stage
	// Ordinals holds each stage's position in the full pipeline when the
	// executor runs a filtered subset. Nil numbers the stages from 1.
	Ordinals []int
	Runner   *runner.Runner
	Shutdown *Shutdown
	Logger   *zap.Logger
	Now      func() time.Time
	NewRunID func() string
}

// Executor runs every stage in order for one cycle.
type Executor struct {
	opts Options
}

// New creates an executor with the supplied options.
func New(opts Options) *Executor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Runner == nil {
		opts.Runner = runner.New(runner.Options{Logger: opts.Logger, Now: opts.Now})
	}
	if opts.Shutdown == nil {
		opts.Shutdown = NewShutdown()
	}
	if opts.NewRunID == nil {
		opts.NewRunID = func() string { return uuid.NewString() }
	}
	opts.Stages = append([]stage.Stage{}, opts.Stages...)
	opts.Ordinals = append([]int(nil), opts.Ordinals...)
	return &Executor{opts: opts}
}

// Stages returns the stages in execution order.
func (e *Executor) Stages() []stage.Stage {
	return append([]stage.Stage{}, e.opts.Stages...)
}

// Execute runs one cycle and returns its result. Stage failures are reported
// in the result, never as an error.
func (e *Executor) Execute(ctx context.Context, cycle uint64) report.CycleResult {
	start := e.opts.Now()
	result := report.CycleResult{
		Cycle:     cycle,
		RunID:     e.opts.NewRunID(),
		StartedAt: start,
		Stages:    make([]report.StageOutcome, 0, len(e.opts.Stages)),
	}
	log := e.opts.Logger.With(zap.Uint64("cycle", cycle), zap.String("run_id", result.RunID))
	log.Info("starting pipeline cycle", zap.Int("stages", len(e.opts.Stages)))

	var payload any
	completed := true
	for i, st := range e.opts.Stages {
		ordinal := e.ordinal(i)
		if e.opts.Shutdown.Requested() {
			log.Info("shutdown requested, aborting cycle", zap.Int("next_stage", ordinal))
			result.Aborted = true
			completed = false
			break
		}

		outcome := e.opts.Runner.Run(ctx, ordinal, st, payload, start)
		result.Stages = append(result.Stages, outcome)
		if !outcome.Success {
			log.Error("pipeline failed", zap.Int("stage", ordinal), zap.String("name", outcome.Name))
			result.FailedStage = ordinal
			completed = false
			break
		}
		payload = outcome.Payload
	}

	if completed {
		result.Success = true
		result.Records = recordsFrom(payload)
	}

	result.TotalTime = e.opts.Now().Sub(start)
	result.TotalTimeMS = result.TotalTime.Milliseconds()

	switch {
	case result.Success:
		log.Info("pipeline cycle completed", zap.Duration("total_time", result.TotalTime), zap.Int("records", result.Records))
	case result.Aborted:
		log.Warn("pipeline cycle aborted", zap.Duration("total_time", result.TotalTime), zap.Int("stages_run", len(result.Stages)))
	default:
		log.Error("pipeline cycle failed", zap.Duration("total_time", result.TotalTime), zap.Int("failed_stage", result.FailedStage))
	}
	return result
}

func (e *Executor) ordinal(i int) int {
	if i < len(e.opts.Ordinals) {
		return e.opts.Ordinals[i]
	}
	return i + 1
}

// recordsFrom extracts the processed-record count from the final payload.
// A missing or non-numeric count yields zero. A key holding zero falls
// through to the next key, so an explicit total_matches of 0 still defers
// to match_count.
func recordsFrom(payload any) int {
	m, ok := payload.(map[string]any)
	if !ok {
		return 0
	}
	for _, key := range recordKeys {
		if n := toInt(m[key]); n > 0 {
			return n
		}
	}
	return 0
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return int(i)
	default:
		return 0
	}
}
