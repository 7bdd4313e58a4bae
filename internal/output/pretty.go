package output

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/bgricker/matchpipe/internal/report"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

// PrettyRenderer renders execution results in a human-friendly format.
type PrettyRenderer struct {
	out   io.Writer
	color bool
}

// NewPretty creates a PrettyRenderer writing to the provided writer. Color is
// enabled when out is a terminal.
func NewPretty(out io.Writer) *PrettyRenderer {
	return &PrettyRenderer{out: out, color: isTerminal(out)}
}

// RenderStages renders the configured pipeline in list mode.
func (p *PrettyRenderer) RenderStages(stages []report.StageInfo) error {
	if len(stages) == 0 {
		_, err := fmt.Fprintln(p.out, "No stages configured")
		return err
	}
	for _, st := range stages {
		if _, err := fmt.Fprintf(p.out, "Stage %d %s [%s]\n", st.Ordinal, st.Name, st.Kind); err != nil {
			return err
		}
		if st.Detail == "" {
			continue
		}
		if _, err := fmt.Fprintf(p.out, "    • %s\n", st.Detail); err != nil {
			return err
		}
	}
	return nil
}

// RenderCycle shows the outcome of every stage of one cycle with a summary.
func (p *PrettyRenderer) RenderCycle(res report.CycleResult) error {
	var buffer bytes.Buffer

	fmt.Fprintf(&buffer, "Cycle %d %s\n", res.Cycle, p.paint(colorGray, res.RunID))
	for _, st := range res.Stages {
		status := "passed"
		if !st.Success {
			status = "failed"
		}
		fmt.Fprintf(&buffer, "  %s %d %s (%s)\n", p.glyph(status), st.Ordinal, st.Name, formatDuration(st.Duration))
		if !st.Success && st.Error != "" {
			fmt.Fprintf(&buffer, "    error:\n%s\n", indent(st.Error, "      "))
		}
	}

	switch {
	case res.Success:
		fmt.Fprintf(&buffer, "SUMMARY: %s, %d stages, %d records (%s)\n",
			p.paint(colorGreen, "succeeded"), len(res.Stages), res.Records, formatDuration(res.TotalTime))
	case res.Aborted:
		fmt.Fprintf(&buffer, "SUMMARY: %s after %d stages (%s)\n",
			p.paint(colorYellow, "aborted"), len(res.Stages), formatDuration(res.TotalTime))
	default:
		fmt.Fprintf(&buffer, "SUMMARY: %s at stage %d (%s)\n",
			p.paint(colorRed, "failed"), res.FailedStage, formatDuration(res.TotalTime))
	}

	_, err := buffer.WriteTo(p.out)
	return err
}

// RenderStatus renders the aggregate status report.
func (p *PrettyRenderer) RenderStatus(st report.Status) error {
	var buffer bytes.Buffer
	fmt.Fprintf(&buffer, "STATUS (%s)\n", st.State)
	fmt.Fprintf(&buffer, "  Uptime:        %s\n", formatDuration(st.Uptime))
	fmt.Fprintf(&buffer, "  Cycles:        %d total, %d succeeded, %d failed, %d aborted\n", st.Cycles, st.Succeeded, st.Failed, st.Aborted)
	fmt.Fprintf(&buffer, "  Success rate:  %.1f%%\n", st.SuccessRate)
	fmt.Fprintf(&buffer, "  Average cycle: %s\n", formatDuration(st.AverageCycleTime))
	fmt.Fprintf(&buffer, "  Records:       %d\n", st.Records)
	fmt.Fprintf(&buffer, "  Errors:        %d\n", st.Errors)
	last := "never"
	if !st.LastSuccess.IsZero() {
		last = st.LastSuccess.Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(&buffer, "  Last success:  %s\n", last)
	_, err := buffer.WriteTo(p.out)
	return err
}

// RenderWarnings prints preflight warnings, if any.
func (p *PrettyRenderer) RenderWarnings(warnings []string) error {
	for _, w := range warnings {
		if _, err := fmt.Fprintf(p.out, "%s %s\n", p.paint(colorYellow, "warning:"), w); err != nil {
			return err
		}
	}
	return nil
}

func (p *PrettyRenderer) glyph(status string) string {
	switch status {
	case "passed":
		return p.paint(colorGreen, "✓")
	case "failed":
		return p.paint(colorRed, "✗")
	default:
		return "?"
	}
}

func (p *PrettyRenderer) paint(color, s string) string {
	if !p.color || s == "" {
		return s
	}
	return color + s + colorReset
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func indent(s, pad string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = pad + lines[i]
	}
	return strings.Join(lines, "\n")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Truncate(time.Millisecond).String()
}
