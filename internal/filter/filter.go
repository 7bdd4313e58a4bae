package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bgricker/matchpipe/internal/config"
)

// Pattern represents a compiled filter condition supporting substring and regex matching.
type Pattern struct {
	raw   string
	regex *regexp.Regexp
	lower string
}

// Compile transforms raw pattern strings into Pattern values.
func Compile(patterns []string) ([]Pattern, error) {
	result := make([]Pattern, 0, len(patterns))
	for _, raw := range patterns {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") && len(raw) >= 2 {
			expr := raw[1 : len(raw)-1]
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("compile regexp %q: %w", raw, err)
			}
			result = append(result, Pattern{raw: raw, regex: re})
			continue
		}
		result = append(result, Pattern{raw: raw, lower: strings.ToLower(raw)})
	}
	return result, nil
}

// String returns the pattern as written.
func (p Pattern) String() string {
	return p.raw
}

// Match reports whether the pattern matches the supplied string.
func (p Pattern) Match(s string) bool {
	if s == "" {
		return false
	}
	if p.regex != nil {
		return p.regex.MatchString(s)
	}
	return strings.Contains(strings.ToLower(s), p.lower)
}

// Selection is a stage config kept by Stages, with its position in the full pipeline.
type Selection struct {
	Ordinal int
	Config  config.StageConfig
}

// Stages applies only/skip patterns to stage configs. A stage matches on its
// name, builtin or run command. Order is preserved.
func Stages(cfgs []config.StageConfig, onlyPatterns, skipPatterns []Pattern) []Selection {
	result := make([]Selection, 0, len(cfgs))
	for i, cfg := range cfgs {
		if len(onlyPatterns) > 0 && !matchesStage(cfg, onlyPatterns) {
			continue
		}
		if len(skipPatterns) > 0 && matchesStage(cfg, skipPatterns) {
			continue
		}
		result = append(result, Selection{Ordinal: i + 1, Config: cfg})
	}
	return result
}

// Configs strips selections back to configs.
func Configs(sel []Selection) []config.StageConfig {
	out := make([]config.StageConfig, 0, len(sel))
	for _, s := range sel {
		out = append(out, s.Config)
	}
	return out
}

// Ordinals returns the full-pipeline position of each selection.
func Ordinals(sel []Selection) []int {
	out := make([]int, 0, len(sel))
	for _, s := range sel {
		out = append(out, s.Ordinal)
	}
	return out
}

func matchesStage(cfg config.StageConfig, patterns []Pattern) bool {
	for _, pattern := range patterns {
		if pattern.Match(cfg.Name) || pattern.Match(cfg.Builtin) || pattern.Match(cfg.Run) {
			return true
		}
	}
	return false
}
