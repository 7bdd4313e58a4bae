package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/bgricker/matchpipe/internal/pipeline"
)

// watchSignals turns SIGINT and SIGTERM into a shutdown request. The returned
// function stops watching.
func watchSignals(sd *pipeline.Shutdown, logger *zap.Logger) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			if sd.Request() {
				logger.Info("received signal, finishing current stage", zap.String("signal", sig.String()))
			}
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
