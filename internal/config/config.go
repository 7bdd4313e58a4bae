package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = ".matchpipe.yml"

// Config captures scheduler options sourced from the config file or flags.
type Config struct {
	Schedule    ScheduleConfig `yaml:"schedule"`
	Log         LogConfig      `yaml:"log"`
	Format      string         `yaml:"format"`
	Verbose     bool           `yaml:"verbose"`
	MetricsAddr string         `yaml:"metrics_addr"`
	Stages      []StageConfig  `yaml:"stages"`
}

// ScheduleConfig controls cycle pacing and failure policy.
type ScheduleConfig struct {
	Interval         Duration `yaml:"interval"`
	FailureThreshold int      `yaml:"failure_threshold"`
	Backoff          Duration `yaml:"backoff"`
	RecoveryDelay    Duration `yaml:"recovery_delay"`
	StatusEvery      int      `yaml:"status_every"`
}

// LogConfig controls where and how verbosely the process logs.
type LogConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// StageConfig describes one pipeline stage. A bare string in YAML is shorthand
// for a builtin stage of that name.
type StageConfig struct {
	Name             string            `yaml:"name"`
	Kind             string            `yaml:"kind"`
	Builtin          string            `yaml:"builtin"`
	Run              string            `yaml:"run"`
	Shell            string            `yaml:"shell"`
	WorkingDirectory string            `yaml:"working_directory"`
	Output           string            `yaml:"output"`
	Env              map[string]string `yaml:"env"`
	Options          map[string]string `yaml:"options"`
	Requires         map[string]string `yaml:"requires"`
	TailLines        int               `yaml:"tail_lines"`
}

const (
	// KindCommand runs the stage as a subprocess.
	KindCommand = "command"
	// KindBuiltin runs a registered in-process stage.
	KindBuiltin = "builtin"

	// FormatPretty renders human readable output.
	FormatPretty = "pretty"
	// FormatJSON renders machine readable output.
	FormatJSON = "json"
)

// UnmarshalYAML allows a stage to be a plain builtin name or a mapping.
func (s *StageConfig) UnmarshalYAML(value *yaml.Node) error {
	var nameOnly string
	if value.Kind == yaml.ScalarNode {
		if err := value.Decode(&nameOnly); err != nil {
			return err
		}
		s.Name = nameOnly
		s.Kind = KindBuiltin
		s.Builtin = nameOnly
		return nil
	}
	type raw StageConfig
	return value.Decode((*raw)(s))
}

// ResolvedKind returns the explicit kind or infers it from the populated fields.
func (s StageConfig) ResolvedKind() string {
	if s.Kind != "" {
		return strings.ToLower(s.Kind)
	}
	if s.Run != "" {
		return KindCommand
	}
	return KindBuiltin
}

// Duration is a time.Duration that unmarshals from YAML strings such as "60s".
// Bare integers are read as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var seconds int64
	if value.Tag == "!!int" {
		if err := value.Decode(&seconds); err != nil {
			return err
		}
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the standard time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Default returns the baseline configuration used when no flags or config file specify values.
func Default() Config {
	return Config{
		Schedule: ScheduleConfig{
			Interval:         Duration(60 * time.Second),
			FailureThreshold: 5,
			Backoff:          Duration(300 * time.Second),
			RecoveryDelay:    Duration(30 * time.Second),
			StatusEvery:      10,
		},
		Log: LogConfig{
			Dir:   "logs",
			Level: "info",
		},
		Format: FormatPretty,
	}
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("read config %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Default(), fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML bytes over the defaults. Keys absent from data keep
// their default; keys present, including explicit zeros, replace it.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first configuration problem that would prevent the scheduler from starting.
func (c Config) Validate() error {
	if c.Schedule.Interval.Duration() <= 0 {
		return fmt.Errorf("schedule.interval must be positive")
	}
	if c.Schedule.FailureThreshold < 1 {
		return fmt.Errorf("schedule.failure_threshold must be at least 1")
	}
	if c.Schedule.Backoff.Duration() <= 0 {
		return fmt.Errorf("schedule.backoff must be positive")
	}
	if c.Schedule.RecoveryDelay.Duration() <= 0 {
		return fmt.Errorf("schedule.recovery_delay must be positive")
	}
	if c.Schedule.StatusEvery < 1 {
		return fmt.Errorf("schedule.status_every must be at least 1")
	}
	switch strings.ToLower(c.Format) {
	case FormatPretty, FormatJSON:
	default:
		return fmt.Errorf("unsupported format %q", c.Format)
	}
	if len(c.Stages) == 0 {
		return fmt.Errorf("no stages configured")
	}
	for i, st := range c.Stages {
		switch st.ResolvedKind() {
		case KindCommand:
			if strings.TrimSpace(st.Run) == "" {
				return fmt.Errorf("stage %d (%s): command stage requires run", i+1, st.Name)
			}
		case KindBuiltin:
			if st.Builtin == "" {
				return fmt.Errorf("stage %d (%s): builtin stage requires builtin", i+1, st.Name)
			}
		default:
			return fmt.Errorf("stage %d (%s): unknown kind %q", i+1, st.Name, st.Kind)
		}
	}
	return nil
}

// ApplyFlags mutates cfg by applying values from CLI flags when they are present.
func ApplyFlags(cfg *Config, flags FlagValues) {
	if flags.Format.Set {
		cfg.Format = flags.Format.Value
	}
	if flags.Verbose.Set {
		cfg.Verbose = flags.Verbose.Value
	}
	if flags.LogDir.Set {
		cfg.Log.Dir = flags.LogDir.Value
	}
	if flags.LogLevel.Set {
		cfg.Log.Level = flags.LogLevel.Value
	}
	if flags.MetricsAddr.Set {
		cfg.MetricsAddr = flags.MetricsAddr.Value
	}
	if flags.Interval.Set {
		cfg.Schedule.Interval = Duration(flags.Interval.Value)
	}
	if flags.FailureThreshold.Set {
		cfg.Schedule.FailureThreshold = flags.FailureThreshold.Value
	}
	if flags.Backoff.Set {
		cfg.Schedule.Backoff = Duration(flags.Backoff.Value)
	}
	if flags.RecoveryDelay.Set {
		cfg.Schedule.RecoveryDelay = Duration(flags.RecoveryDelay.Value)
	}
	if flags.StatusEvery.Set {
		cfg.Schedule.StatusEvery = flags.StatusEvery.Value
	}
}

// FlagValues captures CLI flag state with knowledge of whether each flag was set explicitly.
type FlagValues struct {
	Format           StringFlag
	Verbose          BoolFlag
	LogDir           StringFlag
	LogLevel         StringFlag
	MetricsAddr      StringFlag
	Interval         DurationFlag
	FailureThreshold IntFlag
	Backoff          DurationFlag
	RecoveryDelay    DurationFlag
	StatusEvery      IntFlag
}

// StringFlag represents a string flag and whether it was set.
type StringFlag struct {
	Value string
	Set   bool
}

// BoolFlag represents a bool flag and whether it was set.
type BoolFlag struct {
	Value bool
	Set   bool
}

// IntFlag represents an int flag and whether it was set.
type IntFlag struct {
	Value int
	Set   bool
}

// DurationFlag represents a duration flag and whether it was set.
type DurationFlag struct {
	Value time.Duration
	Set   bool
}
