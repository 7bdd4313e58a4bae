package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgricker/matchpipe/internal/config"
	"github.com/bgricker/matchpipe/internal/filter"
	"github.com/bgricker/matchpipe/internal/output"
	"github.com/bgricker/matchpipe/internal/pipeline"
	"github.com/bgricker/matchpipe/internal/runner"
)

func newOnceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Execute a single pipeline cycle and exit",
		RunE:  runOnce,
	}
	addFilterFlags(cmd)
	return cmd
}

func runOnce(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	sel, err := a.selectStages(cmd)
	if err != nil {
		return err
	}
	if len(sel) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching stages")
		return nil
	}
	logger, closeLog, err := a.logger(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	stages, err := a.buildStages(cmd, sel)
	if err != nil {
		return err
	}
	warnings := a.warnings(cmd, sel)

	sd := pipeline.NewShutdown()
	stop := watchSignals(sd, logger)
	defer stop()

	exec := pipeline.New(pipeline.Options{
		Stages:   stages,
		Ordinals: filter.Ordinals(sel),
		Runner:   runner.New(runner.Options{Logger: logger.Named("runner")}),
		Shutdown: sd,
		Logger:   logger.Named("pipeline"),
	})
	res := exec.Execute(cmd.Context(), 1)

	switch a.cfg.Format {
	case config.FormatPretty:
		if err := output.NewPretty(cmd.OutOrStdout()).RenderCycle(res); err != nil {
			return err
		}
		printWarnings(cmd, warnings)
	case config.FormatJSON:
		rep := output.Report{Config: a.configPath, Cycle: &res, Warnings: warnings}
		if err := output.NewJSON(cmd.OutOrStdout()).Render(rep); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported format %q", a.cfg.Format)
	}

	switch {
	case res.Success:
		return nil
	case res.Aborted:
		return fmt.Errorf("cycle aborted by shutdown")
	default:
		return fmt.Errorf("cycle failed at stage %d", res.FailedStage)
	}
}
