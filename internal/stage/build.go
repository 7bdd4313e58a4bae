package stage

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/bgricker/matchpipe/internal/config"
)

// BuildOptions carries process-wide settings shared by every configured stage.
type BuildOptions struct {
	Root    string
	Env     []string
	Verbose bool
	Stdout  io.Writer
	Stderr  io.Writer
	// Ordinals holds each config's position in the full pipeline when only a
	// subset is built. Nil numbers the configs from 1.
	Ordinals []int
}

// Build turns stage configs into stages in the configured order. The backing
// implementation is chosen by kind, never by position.
func Build(cfgs []config.StageConfig, reg *Registry, opts BuildOptions) ([]Stage, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}
	stages := make([]Stage, 0, len(cfgs))
	for i, cfg := range cfgs {
		ordinal := i + 1
		if i < len(opts.Ordinals) {
			ordinal = opts.Ordinals[i]
		}
		name := DisplayName(ordinal, cfg)
		switch cfg.ResolvedKind() {
		case config.KindCommand:
			stages = append(stages, NewCommand(name, CommandOptions{
				Run:              cfg.Run,
				Shell:            cfg.Shell,
				Root:             opts.Root,
				WorkingDirectory: cfg.WorkingDirectory,
				Output:           cfg.Output,
				Env:              cfg.Env,
				BaseEnv:          opts.Env,
				TailLines:        cfg.TailLines,
				Verbose:          opts.Verbose,
				Stdout:           opts.Stdout,
				Stderr:           opts.Stderr,
			}))
		case config.KindBuiltin:
			st, err := reg.New(cfg.Builtin, name, resolveOptionPaths(opts.Root, cfg.Options))
			if err != nil {
				return nil, fmt.Errorf("stage %d (%s): %w", ordinal, name, err)
			}
			stages = append(stages, st)
		default:
			return nil, fmt.Errorf("stage %d (%s): unknown kind %q", ordinal, name, cfg.Kind)
		}
	}
	return stages, nil
}

// DisplayName returns the configured name or a positional fallback.
func DisplayName(ordinal int, cfg config.StageConfig) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	if cfg.Builtin != "" {
		return cfg.Builtin
	}
	return fmt.Sprintf("stage %d", ordinal)
}

// resolveOptionPaths anchors a relative "path" option at root.
func resolveOptionPaths(root string, options map[string]string) map[string]string {
	path, ok := options["path"]
	if !ok || root == "" || path == "" || filepath.IsAbs(path) {
		return options
	}
	out := make(map[string]string, len(options))
	for k, v := range options {
		out[k] = v
	}
	out["path"] = filepath.Join(root, path)
	return out
}
