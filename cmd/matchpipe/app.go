package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bgricker/matchpipe/internal/config"
	"github.com/bgricker/matchpipe/internal/discovery"
	"github.com/bgricker/matchpipe/internal/filter"
	"github.com/bgricker/matchpipe/internal/logging"
	"github.com/bgricker/matchpipe/internal/output"
	"github.com/bgricker/matchpipe/internal/preflight"
	"github.com/bgricker/matchpipe/internal/report"
	"github.com/bgricker/matchpipe/internal/stage"
)

// app bundles the loaded configuration with the working directory it was resolved against.
type app struct {
	cfg        config.Config
	root       string
	configPath string
}

func loadApp(cmd *cobra.Command) (app, error) {
	root, err := os.Getwd()
	if err != nil {
		return app{}, fmt.Errorf("determine working directory: %w", err)
	}

	explicit, err := cmd.Flags().GetString("config")
	if err != nil {
		return app{}, fmt.Errorf("parse --config: %w", err)
	}
	rel, err := discovery.ConfigFile(root, explicit)
	if err != nil && !errors.Is(err, discovery.ErrNoConfig) {
		return app{}, err
	}

	path := rel
	if rel != "" && !filepath.IsAbs(rel) {
		path = filepath.Join(root, rel)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return app{}, err
	}

	flags, err := gatherFlags(cmd)
	if err != nil {
		return app{}, err
	}
	config.ApplyFlags(&cfg, flags)
	cfg.Format = strings.ToLower(cfg.Format)

	return app{cfg: cfg, root: root, configPath: rel}, nil
}

func (a app) logger(cmd *cobra.Command) (*zap.Logger, func() error, error) {
	dir := a.cfg.Log.Dir
	if dir != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(a.root, dir)
	}
	logger, closeFn, err := logging.New(logging.Options{
		Dir:     dir,
		Level:   a.cfg.Log.Level,
		Verbose: a.cfg.Verbose,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, closeFn, nil
}

// selectStages applies --only/--skip when the command defines them.
func (a app) selectStages(cmd *cobra.Command) ([]filter.Selection, error) {
	var only, skip []string
	flags := cmd.Flags()
	if flags.Lookup("only") != nil {
		v, err := flags.GetStringArray("only")
		if err != nil {
			return nil, fmt.Errorf("parse --only: %w", err)
		}
		only = v
	}
	if flags.Lookup("skip") != nil {
		v, err := flags.GetStringArray("skip")
		if err != nil {
			return nil, fmt.Errorf("parse --skip: %w", err)
		}
		skip = v
	}

	onlyPatterns, err := filter.Compile(only)
	if err != nil {
		return nil, err
	}
	skipPatterns, err := filter.Compile(skip)
	if err != nil {
		return nil, err
	}
	return filter.Stages(a.cfg.Stages, onlyPatterns, skipPatterns), nil
}

func (a app) buildStages(cmd *cobra.Command, sel []filter.Selection) ([]stage.Stage, error) {
	return stage.Build(filter.Configs(sel), nil, stage.BuildOptions{
		Root:     a.root,
		Env:      os.Environ(),
		Verbose:  a.cfg.Verbose,
		Stdout:   cmd.ErrOrStderr(),
		Stderr:   cmd.ErrOrStderr(),
		Ordinals: filter.Ordinals(sel),
	})
}

func (a app) warnings(cmd *cobra.Command, sel []filter.Selection) []string {
	return preflight.Check(cmd.Context(), sel, nil)
}

func stageInfos(sel []filter.Selection) []report.StageInfo {
	infos := make([]report.StageInfo, 0, len(sel))
	for _, s := range sel {
		info := report.StageInfo{
			Ordinal: s.Ordinal,
			Name:    stage.DisplayName(s.Ordinal, s.Config),
			Kind:    s.Config.ResolvedKind(),
		}
		switch info.Kind {
		case config.KindCommand:
			info.Detail = strings.TrimSpace(s.Config.Run)
		case config.KindBuiltin:
			info.Detail = s.Config.Builtin
		}
		infos = append(infos, info)
	}
	return infos
}

func printWarnings(cmd *cobra.Command, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	_ = output.NewPretty(cmd.ErrOrStderr()).RenderWarnings(warnings)
}
