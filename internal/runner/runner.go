package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bgricker/matchpipe/internal/report"
	"github.com/bgricker/matchpipe/internal/stage"
)

// Options configure how the runner invokes stages.
type Options struct {
	Logger *zap.Logger
	Now    func() time.Time
}

// Runner invokes a single stage and normalizes its outcome. It is the only
// place stage failures are contained: Run never returns an error and never panics.
type Runner struct {
	opts Options
}

// New creates a runner with the supplied options.
func New(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{opts: opts}
}

// Run invokes st with the previous payload and returns its outcome.
func (r *Runner) Run(ctx context.Context, ordinal int, st stage.Stage, input any, pipelineStart time.Time) (outcome report.StageOutcome) {
	outcome = report.StageOutcome{Ordinal: ordinal}
	log := r.opts.Logger.With(zap.Int("stage", ordinal))

	start := r.opts.Now()
	elapsed := start.Sub(pipelineStart)
	if pipelineStart.IsZero() || elapsed < 0 {
		elapsed = 0
	}

	defer func() {
		if rec := recover(); rec != nil {
			outcome.Success = false
			outcome.Payload = nil
			outcome.Error = fmt.Sprintf("stage panicked: %v", rec)
			outcome.Trace = string(debug.Stack())
		}
		if outcome.Name == "" {
			outcome.Name = fmt.Sprintf("stage %d", ordinal)
		}
		outcome.Duration = r.opts.Now().Sub(start)
		outcome.DurationMS = outcome.Duration.Milliseconds()
		if outcome.Success {
			log.Debug("stage completed", zap.Duration("duration", outcome.Duration))
			return
		}
		log.Error("stage failed", zap.String("name", outcome.Name), zap.Duration("duration", outcome.Duration), zap.String("error", outcome.Error))
	}()

	// Name belongs to the stage too, so it runs under the recover above.
	outcome.Name = st.Name()
	log.Debug("executing stage", zap.String("name", outcome.Name))
	payload, err := st.Run(ctx, input, elapsed)
	if err != nil {
		outcome.Error = err.Error()
		outcome.Trace = errorTrace(err)
		return outcome
	}
	outcome.Success = true
	outcome.Payload = payload
	return outcome
}

// errorTrace renders the wrap chain of err, outermost first.
func errorTrace(err error) string {
	var b strings.Builder
	for depth := 0; err != nil; depth++ {
		fmt.Fprintf(&b, "%s%T: %s\n", strings.Repeat("  ", depth), err, err.Error())
		err = errors.Unwrap(err)
	}
	return strings.TrimRight(b.String(), "\n")
}
