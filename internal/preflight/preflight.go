// Package preflight checks that the tools command stages depend on are
// installed before the scheduler starts.
package preflight

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bgricker/matchpipe/internal/filter"
	"github.com/bgricker/matchpipe/internal/stage"
)

// Info captures a tool version installed on the system.
type Info struct {
	Name    string
	Version string
}

// Detector reports the installed version of tool.
type Detector func(ctx context.Context, tool string) (Info, error)

var versionRegex = regexp.MustCompile(`v?(\d+\.\d+(?:\.\d+)?)`)

const detectTimeout = 10 * time.Second

// Detect runs `<tool> --version` and extracts the first dotted version.
func Detect(ctx context.Context, tool string) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	out, err := runCommand(ctx, tool, "--version")
	if err != nil {
		return Info{}, err
	}
	match := versionRegex.FindStringSubmatch(out)
	if len(match) < 2 {
		return Info{}, fmt.Errorf("unable to parse %s version from %q", tool, out)
	}
	return Info{Name: tool, Version: match[1]}, nil
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = nil
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// Check verifies the requirements of every selected stage and returns one
// warning per unmet requirement. Each tool is probed once.
func Check(ctx context.Context, sel []filter.Selection, detect Detector) []string {
	if detect == nil {
		detect = Detect
	}
	type probe struct {
		info Info
		err  error
	}
	probes := map[string]probe{}

	var warnings []string
	for _, s := range sel {
		cfg := s.Config
		if len(cfg.Requires) == 0 {
			continue
		}
		label := fmt.Sprintf("stage %d (%s)", s.Ordinal, stage.DisplayName(s.Ordinal, cfg))

		tools := make([]string, 0, len(cfg.Requires))
		for tool := range cfg.Requires {
			tools = append(tools, tool)
		}
		sort.Strings(tools)

		for _, tool := range tools {
			desired := strings.TrimSpace(cfg.Requires[tool])
			p, ok := probes[tool]
			if !ok {
				p.info, p.err = detect(ctx, tool)
				probes[tool] = p
			}
			switch {
			case p.err != nil && Missing(p.err):
				warnings = append(warnings, fmt.Sprintf("%s: %s not found on PATH", label, tool))
			case p.err != nil:
				warnings = append(warnings, fmt.Sprintf("%s: unable to detect %s version: %v", label, tool, p.err))
			case !CompareMajorMinor(desired, p.info.Version):
				warnings = append(warnings, fmt.Sprintf("%s: requires %s %s, found %s", label, tool, desired, p.info.Version))
			}
		}
	}
	return warnings
}

// CompareMajorMinor reports whether actual satisfies desired on the
// components desired specifies, up to major.minor. An empty desired version
// matches anything.
func CompareMajorMinor(desired, actual string) bool {
	d := semverPrefix(desired)
	if d == "" {
		return true
	}
	a := semverPrefix(actual)
	if a == "" {
		return false
	}
	if !strings.Contains(d, ".") {
		a, _, _ = strings.Cut(a, ".")
	}
	return strings.EqualFold(d, a)
}

func semverPrefix(version string) string {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	if version == "" {
		return ""
	}
	parts := strings.Split(version, ".")
	if len(parts) < 2 {
		return parts[0]
	}
	return fmt.Sprintf("%s.%s", parts[0], parts[1])
}

// Missing reports whether executing the command returns a not-found error.
func Missing(cmdErr error) bool {
	return errors.Is(cmdErr, exec.ErrNotFound)
}
