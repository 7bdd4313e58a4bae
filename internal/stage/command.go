package stage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// CommandOptions configure how a subprocess stage is executed.
type CommandOptions struct {
	Run              string
	Shell            string
	Root             string
	WorkingDirectory string
	Output           string
	Env              map[string]string
	BaseEnv          []string
	TailLines        int
	Verbose          bool
	Stdout           io.Writer
	Stderr           io.Writer
}

// Command runs a stage as an external process. Exit code 0 is success; the
// payload is read from the Output file when one is configured, otherwise it
// is the trimmed stdout.
type Command struct {
	name string
	opts CommandOptions
}

// ExitError reports a subprocess stage that could not start or exited non-zero.
type ExitError struct {
	Stage    string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("stage %q exited with code %d", e.Stage, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewCommand creates a subprocess stage with the supplied options.
func NewCommand(name string, opts CommandOptions) *Command {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.TailLines <= 0 {
		opts.TailLines = 20
	}
	if opts.BaseEnv == nil {
		opts.BaseEnv = os.Environ()
	}
	return &Command{name: name, opts: opts}
}

// Name implements Stage.
func (c *Command) Name() string { return c.name }

// Run implements Stage. The previous payload is written to stdin as JSON.
func (c *Command) Run(ctx context.Context, input any, elapsed time.Duration) (any, error) {
	env := mergeEnv(c.opts.BaseEnv, c.opts.Env, map[string]string{
		"MATCHPIPE_STAGE":           c.name,
		"MATCHPIPE_ELAPSED_SECONDS": fmt.Sprintf("%.3f", elapsed.Seconds()),
	})
	cmdArgs, err := commandArgs(c.opts.Shell, c.opts.Run)
	if err != nil {
		return nil, &ExitError{Stage: c.name, ExitCode: 127, Stderr: err.Error(), Err: err}
	}

	workingDir, err := resolveWorkingDirectory(c.opts.Root, c.opts.WorkingDirectory)
	if err != nil {
		return nil, &ExitError{Stage: c.name, ExitCode: 127, Stderr: err.Error(), Err: err}
	}

	cmd := exec.CommandContext(ctx, cmdArgs[0], cmdArgs[1:]...)
	cmd.Dir = workingDir
	cmd.Env = env

	if input != nil {
		data, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("encode stdin for stage %q: %w", c.name, err)
		}
		cmd.Stdin = bytes.NewReader(data)
	}

	var stdoutBuf, stderrBuf strings.Builder
	if c.opts.Verbose {
		cmd.Stdout = io.MultiWriter(c.opts.Stdout, &stdoutBuf)
		cmd.Stderr = io.MultiWriter(c.opts.Stderr, &stderrBuf)
	} else {
		cmd.Stdout = &stdoutBuf
		cmd.Stderr = &stderrBuf
	}

	if err := cmd.Run(); err != nil {
		stderr := tailLines(stderrBuf.String(), c.opts.TailLines)
		if stderr == "" {
			stderr = tailLines(stdoutBuf.String(), c.opts.TailLines)
		}
		return nil, &ExitError{Stage: c.name, ExitCode: exitCode(err), Stderr: stderr, Err: err}
	}

	if c.opts.Output == "" {
		out := strings.TrimSpace(stdoutBuf.String())
		if out == "" {
			return nil, nil
		}
		return out, nil
	}

	outputPath := c.opts.Output
	if !filepath.IsAbs(outputPath) {
		outputPath = filepath.Join(workingDir, outputPath)
	}
	return readJSONFile(outputPath, true)
}

// readJSONFile decodes a JSON document. When allowMissing is set a missing
// file yields a nil payload.
func readJSONFile(path string, allowMissing bool) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode %q: %w", path, err)
	}
	return payload, nil
}

func commandArgs(shellSpec string, script string) ([]string, error) {
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("empty command")
	}
	shellSpec = strings.TrimSpace(shellSpec)
	if shellSpec == "" {
		if runtime.GOOS == "windows" {
			return []string{"cmd", "/C", script}, nil
		}
		return []string{"sh", "-c", script}, nil
	}

	fields := strings.Fields(shellSpec)
	shell := fields[0]
	args := append([]string{}, fields[1:]...)
	base := strings.ToLower(filepath.Base(shell))

	switch base {
	case "bash", "zsh", "ksh", "fish":
		args = append(args, "-l", "-c", script)
		return append([]string{shell}, args...), nil
	case "sh":
		// sh may be dash, which rejects -l
		args = append(args, "-c", script)
		return append([]string{shell}, args...), nil
	case "cmd", "cmd.exe":
		args = append(args, "/C", script)
		return append([]string{shell}, args...), nil
	case "pwsh", "powershell", "powershell.exe":
		args = append(args, "-Command", script)
		return append([]string{shell}, args...), nil
	case "python", "python3", "python.exe":
		args = append(args, "-c", script)
		return append([]string{shell}, args...), nil
	default:
		args = append(args, script)
		return append([]string{shell}, args...), nil
	}
}

func resolveWorkingDirectory(root, dir string) (string, error) {
	candidate := strings.TrimSpace(dir)
	if candidate != "" {
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(root, candidate)
		}
		info, err := os.Stat(candidate)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("working directory %q not found", candidate)
			}
			return "", fmt.Errorf("stat working directory %q: %w", candidate, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("working directory %q is not a directory", candidate)
		}
		return candidate, nil
	}
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
	}
	return root, nil
}

func mergeEnv(base []string, overlays ...map[string]string) []string {
	envMap := make(map[string]string, len(base)+len(overlays)*4)
	for _, kv := range base {
		if idx := strings.Index(kv, "="); idx != -1 {
			envMap[kv[:idx]] = kv[idx+1:]
		}
	}
	for _, overlay := range overlays {
		for k, v := range overlay {
			envMap[k] = v
		}
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, envMap[k]))
	}
	return out
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(interface{ ExitStatus() int }); ok {
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}
	return 1
}

func tailLines(input string, maxLines int) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}
	lines := strings.Split(strings.TrimRight(input, "\n"), "\n")
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-maxLines:], "\n")
}
