package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bgricker/matchpipe/internal/config"
	"github.com/bgricker/matchpipe/internal/filter"
	"github.com/bgricker/matchpipe/internal/metrics"
	"github.com/bgricker/matchpipe/internal/output"
	"github.com/bgricker/matchpipe/internal/pipeline"
	"github.com/bgricker/matchpipe/internal/report"
	"github.com/bgricker/matchpipe/internal/runner"
	"github.com/bgricker/matchpipe/internal/scheduler"
)

const metricsShutdownTimeout = 5 * time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline continuously until interrupted",
		RunE:  runContinuous,
	}
	flags := cmd.Flags()
	flags.Duration("interval", 0, "target time between cycle starts (default 60s)")
	flags.Int("failure-threshold", 0, "consecutive failures before backing off (default 5)")
	flags.Duration("backoff", 0, "sleep after too many consecutive failures (default 5m)")
	flags.Duration("recovery-delay", 0, "sleep after a recovered scheduler fault (default 30s)")
	flags.Int("status-every", 0, "emit a status report every N cycles (default 10)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func runContinuous(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := a.logger(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	all := filter.Stages(a.cfg.Stages, nil, nil)
	stages, err := a.buildStages(cmd, all)
	if err != nil {
		return err
	}
	for _, w := range a.warnings(cmd, all) {
		logger.Warn("preflight", zap.String("warning", w))
	}

	var listener net.Listener
	var prom *metrics.Prometheus
	if a.cfg.MetricsAddr != "" {
		listener, err = net.Listen("tcp", a.cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("listen on metrics address %q: %w", a.cfg.MetricsAddr, err)
		}
		prom = metrics.NewPrometheus()
	}

	sd := pipeline.NewShutdown()
	stop := watchSignals(sd, logger)
	defer stop()

	exec := pipeline.New(pipeline.Options{
		Stages:   stages,
		Runner:   runner.New(runner.Options{Logger: logger.Named("runner")}),
		Shutdown: sd,
		Logger:   logger.Named("pipeline"),
	})
	sched := scheduler.New(scheduler.Options{
		Executor:         exec,
		Metrics:          metrics.NewAccumulator(prom),
		Shutdown:         sd,
		Logger:           logger.Named("scheduler"),
		Interval:         a.cfg.Schedule.Interval.Duration(),
		FailureThreshold: a.cfg.Schedule.FailureThreshold,
		Backoff:          a.cfg.Schedule.Backoff.Duration(),
		RecoveryDelay:    a.cfg.Schedule.RecoveryDelay.Duration(),
		StatusEvery:      a.cfg.Schedule.StatusEvery,
		Reporter:         statusReporter(cmd, a.cfg.Format, logger),
	})

	logger.Info("starting continuous pipeline",
		zap.String("config", a.configPath),
		zap.Int("stages", len(stages)),
		zap.Duration("interval", a.cfg.Schedule.Interval.Duration()),
	)

	g, gctx := errgroup.WithContext(cmd.Context())
	var srv *http.Server
	if listener != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		srv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		logger.Info("serving metrics", zap.String("addr", listener.Addr().String()))
		g.Go(func() error {
			if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer func() {
			if srv == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("metrics server shutdown", zap.Error(err))
			}
		}()
		return sched.Run(gctx)
	})

	return g.Wait()
}

func statusReporter(cmd *cobra.Command, format string, logger *zap.Logger) func(report.Status) {
	return func(st report.Status) {
		var err error
		switch format {
		case config.FormatJSON:
			err = output.NewJSON(cmd.OutOrStdout()).Render(output.Report{Status: &st})
		default:
			err = output.NewPretty(cmd.OutOrStdout()).RenderStatus(st)
		}
		if err != nil {
			logger.Warn("render status report", zap.Error(err))
		}
	}
}
