package main

import (
	"github.com/spf13/cobra"

	"github.com/bgricker/matchpipe/internal/config"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "matchpipe",
		Short:         "Matchpipe runs a staged data pipeline on a fixed interval",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	persistent := cmd.PersistentFlags()
	persistent.String("config", "", "config file (default: "+config.DefaultFileName+" in the working directory)")
	persistent.String("format", "pretty", "output format (pretty|json)")
	persistent.BoolP("verbose", "v", false, "debug logging and streamed stage output")
	persistent.String("log-dir", "", "directory for daily log files (empty string disables file logging)")
	persistent.String("log-level", "", "console log level (debug|info|warn|error)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newOnceCmd())
	cmd.AddCommand(newStagesCmd())

	return cmd
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("only", nil, "include only matching stages (substring or /regex/)")
	cmd.Flags().StringArray("skip", nil, "exclude matching stages (substring or /regex/)")
}
