// Package scheduler drives the pipeline executor in a continuous loop with
// failure backoff, status reporting and cooperative shutdown.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bgricker/matchpipe/internal/metrics"
	"github.com/bgricker/matchpipe/internal/pipeline"
	"github.com/bgricker/matchpipe/internal/report"
)

var (
	// ErrAlreadyStarted is returned when Run is called more than once.
	ErrAlreadyStarted = errors.New("scheduler already started")
	// ErrNoExecutor is returned when Run is called without an executor.
	ErrNoExecutor = errors.New("scheduler has no executor")
)

// Defaults applied when an option is left at zero.
const (
	DefaultInterval         = 60 * time.Second
	DefaultFailureThreshold = 5
	DefaultBackoff          = 300 * time.Second
	DefaultRecoveryDelay    = 30 * time.Second
	DefaultStatusEvery      = 10
)

// Executor runs one pipeline cycle.
type Executor interface {
	Execute(ctx context.Context, cycle uint64) report.CycleResult
}

// SleepFunc blocks for d or until ctx is done or wake is closed.
type SleepFunc func(ctx context.Context, d time.Duration, wake <-chan struct{})

// Options configure a Scheduler.
type Options struct {
	Executor Executor
	Metrics  *metrics.Accumulator
	Shutdown *pipeline.Shutdown
	Logger   *zap.Logger

	Interval         time.Duration
	FailureThreshold int
	Backoff          time.Duration
	RecoveryDelay    time.Duration
	StatusEvery      int

	// Reporter receives every status report in addition to the log line.
	Reporter func(report.Status)

	Now   func() time.Time
	Sleep SleepFunc
}

// Scheduler owns the loop state. All counters are written by the loop
// goroutine only; Status may be read from anywhere.
type Scheduler struct {
	opts    Options
	log     *zap.Logger
	state   atomic.Int32
	started atomic.Bool

	mu          sync.Mutex
	cycle       uint64
	startTime   time.Time
	lastSuccess time.Time
	consecutive int
	errors      uint64
}

// New creates an idle scheduler.
func New(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewAccumulator(nil)
	}
	if opts.Shutdown == nil {
		opts.Shutdown = pipeline.NewShutdown()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.RecoveryDelay <= 0 {
		opts.RecoveryDelay = DefaultRecoveryDelay
	}
	if opts.StatusEvery <= 0 {
		opts.StatusEvery = DefaultStatusEvery
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	return &Scheduler{opts: opts, log: opts.Logger}
}

// Shutdown requests a graceful stop. The current stage finishes; the loop
// exits at the top of its next iteration.
func (s *Scheduler) Shutdown() {
	if s.opts.Shutdown.Request() {
		s.log.Info("shutdown requested, draining")
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	st := State(s.state.Load())
	if st == StateRunning && s.opts.Shutdown.Requested() {
		return StateDraining
	}
	return st
}

// Run executes cycles until shutdown is requested or ctx is cancelled. It
// returns nil on a clean stop.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.opts.Executor == nil {
		return ErrNoExecutor
	}
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	s.mu.Lock()
	s.startTime = s.opts.Now()
	s.mu.Unlock()
	s.state.Store(int32(StateRunning))
	s.log.Info("scheduler started",
		zap.Duration("interval", s.opts.Interval),
		zap.Int("failure_threshold", s.opts.FailureThreshold),
		zap.Duration("backoff", s.opts.Backoff),
	)

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-stopWatch:
		}
	}()

	for !s.opts.Shutdown.Requested() {
		s.iterate(ctx)
	}

	s.state.Store(int32(StateDraining))
	s.emitStatus("final")
	s.state.Store(int32(StateStopped))
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) iterate(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			s.mu.Lock()
			s.errors++
			s.mu.Unlock()
			s.log.Error("scheduler fault recovered",
				zap.String("panic", fmt.Sprint(rec)),
				zap.ByteString("stack", debug.Stack()),
				zap.Duration("recovery_delay", s.opts.RecoveryDelay),
			)
			s.sleep(ctx, s.opts.RecoveryDelay)
		}
	}()

	s.mu.Lock()
	s.cycle++
	cycle := s.cycle
	s.mu.Unlock()

	res := s.opts.Executor.Execute(ctx, cycle)
	if res.Aborted && !res.Ran() {
		// shutdown arrived before the first stage; nothing happened
		s.mu.Lock()
		s.cycle--
		s.mu.Unlock()
		return
	}
	s.opts.Metrics.Record(res)

	s.mu.Lock()
	switch {
	case res.Success:
		s.consecutive = 0
		s.lastSuccess = s.opts.Now()
	case res.Aborted:
	default:
		s.consecutive++
		s.errors++
	}
	consecutive := s.consecutive
	s.mu.Unlock()
	s.opts.Metrics.SetConsecutiveFailures(consecutive)

	if consecutive >= s.opts.FailureThreshold {
		s.log.Warn("too many consecutive failures, backing off",
			zap.Int("consecutive_failures", consecutive),
			zap.Duration("backoff", s.opts.Backoff),
		)
		s.sleep(ctx, s.opts.Backoff)
		s.mu.Lock()
		s.consecutive = 0
		s.mu.Unlock()
		s.opts.Metrics.SetConsecutiveFailures(0)
	}

	if cycle%uint64(s.opts.StatusEvery) == 0 {
		s.emitStatus("periodic")
	}

	if s.opts.Shutdown.Requested() {
		return
	}
	remaining := s.opts.Interval - res.TotalTime
	if remaining <= 0 {
		s.log.Warn("cycle exceeded interval, starting next cycle immediately",
			zap.Uint64("cycle", cycle),
			zap.Duration("total_time", res.TotalTime),
			zap.Duration("interval", s.opts.Interval),
		)
		return
	}
	s.log.Debug("waiting for next cycle", zap.Duration("sleep", remaining))
	s.sleep(ctx, remaining)
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	if s.opts.Shutdown.Requested() {
		return
	}
	s.opts.Sleep(ctx, d, s.opts.Shutdown.Done())
}

// Status assembles the aggregate status report.
func (s *Scheduler) Status() report.Status {
	snap := s.opts.Metrics.Snapshot()

	s.mu.Lock()
	start, lastSuccess, errs := s.startTime, s.lastSuccess, s.errors
	s.mu.Unlock()

	var uptime time.Duration
	if !start.IsZero() {
		uptime = s.opts.Now().Sub(start)
	}
	return report.Status{
		State:              s.State().String(),
		Uptime:             uptime,
		UptimeMS:           uptime.Milliseconds(),
		Cycles:             snap.Cycles,
		Succeeded:          snap.Succeeded,
		Failed:             snap.Failed,
		Aborted:            snap.Aborted,
		SuccessRate:        snap.SuccessRate(),
		AverageCycleTime:   snap.AverageCycleTime,
		AverageCycleTimeMS: snap.AverageCycleTime.Milliseconds(),
		Records:            snap.Records,
		Errors:             errs,
		LastSuccess:        lastSuccess,
	}
}

// ConsecutiveFailures returns the current failure streak.
func (s *Scheduler) ConsecutiveFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutive
}

func (s *Scheduler) emitStatus(kind string) {
	st := s.Status()
	s.log.Info("status report",
		zap.String("kind", kind),
		zap.String("state", st.State),
		zap.Duration("uptime", st.Uptime),
		zap.Uint64("cycles", st.Cycles),
		zap.Uint64("succeeded", st.Succeeded),
		zap.Uint64("failed", st.Failed),
		zap.Uint64("aborted", st.Aborted),
		zap.Float64("success_rate", st.SuccessRate),
		zap.Duration("average_cycle_time", st.AverageCycleTime),
		zap.Uint64("records", st.Records),
		zap.Uint64("errors", st.Errors),
		zap.Time("last_success", st.LastSuccess),
	)
	if s.opts.Reporter != nil {
		s.opts.Reporter(st)
	}
}

// Sleep waits for d, returning early when ctx is done or wake is closed.
func Sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-wake:
	}
}
