package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgricker/matchpipe/internal/config"
	"github.com/bgricker/matchpipe/internal/output"
)

func newStagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stages",
		Short: "List the configured pipeline stages",
		RunE:  runStages,
	}
	addFilterFlags(cmd)
	return cmd
}

func runStages(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	sel, err := a.selectStages(cmd)
	if err != nil {
		return err
	}
	infos := stageInfos(sel)
	warnings := a.warnings(cmd, sel)

	switch a.cfg.Format {
	case config.FormatPretty:
		if err := output.NewPretty(cmd.OutOrStdout()).RenderStages(infos); err != nil {
			return err
		}
		printWarnings(cmd, warnings)
	case config.FormatJSON:
		rep := output.Report{Config: a.configPath, Stages: infos, Warnings: warnings}
		if err := output.NewJSON(cmd.OutOrStdout()).Render(rep); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported format %q", a.cfg.Format)
	}
	return nil
}
