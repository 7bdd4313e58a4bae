package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bgricker/matchpipe/internal/config"
)

func gatherFlags(cmd *cobra.Command) (config.FlagValues, error) {
	flags := cmd.Flags()
	var values config.FlagValues

	if flags.Changed("format") {
		v, err := flags.GetString("format")
		if err != nil {
			return values, fmt.Errorf("parse --format: %w", err)
		}
		values.Format = config.StringFlag{Value: v, Set: true}
	}

	if flags.Changed("verbose") {
		v, err := flags.GetBool("verbose")
		if err != nil {
			return values, fmt.Errorf("parse --verbose: %w", err)
		}
		values.Verbose = config.BoolFlag{Value: v, Set: true}
	}

	if flags.Changed("log-dir") {
		v, err := flags.GetString("log-dir")
		if err != nil {
			return values, fmt.Errorf("parse --log-dir: %w", err)
		}
		values.LogDir = config.StringFlag{Value: v, Set: true}
	}

	if flags.Changed("log-level") {
		v, err := flags.GetString("log-level")
		if err != nil {
			return values, fmt.Errorf("parse --log-level: %w", err)
		}
		values.LogLevel = config.StringFlag{Value: v, Set: true}
	}

	if flags.Lookup("metrics-addr") != nil && flags.Changed("metrics-addr") {
		v, err := flags.GetString("metrics-addr")
		if err != nil {
			return values, fmt.Errorf("parse --metrics-addr: %w", err)
		}
		values.MetricsAddr = config.StringFlag{Value: v, Set: true}
	}

	for _, name := range []string{"interval", "backoff", "recovery-delay"} {
		if flags.Lookup(name) == nil || !flags.Changed(name) {
			continue
		}
		v, err := flags.GetDuration(name)
		if err != nil {
			return values, fmt.Errorf("parse --%s: %w", name, err)
		}
		flag := config.DurationFlag{Value: v, Set: true}
		switch name {
		case "interval":
			values.Interval = flag
		case "backoff":
			values.Backoff = flag
		case "recovery-delay":
			values.RecoveryDelay = flag
		}
	}

	if flags.Lookup("failure-threshold") != nil && flags.Changed("failure-threshold") {
		v, err := flags.GetInt("failure-threshold")
		if err != nil {
			return values, fmt.Errorf("parse --failure-threshold: %w", err)
		}
		values.FailureThreshold = config.IntFlag{Value: v, Set: true}
	}

	if flags.Lookup("status-every") != nil && flags.Changed("status-every") {
		v, err := flags.GetInt("status-every")
		if err != nil {
			return values, fmt.Errorf("parse --status-every: %w", err)
		}
		values.StatusEvery = config.IntFlag{Value: v, Set: true}
	}

	return values, nil
}
