package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesConsoleAndDailyFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	console := &bytes.Buffer{}
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	logger, closeFn, err := New(Options{Dir: dir, Level: "info", Console: console, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("hidden on console", zap.Int("cycle", 1))
	logger.Info("cycle completed", zap.Int("cycle", 1))
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if strings.Contains(console.String(), "hidden on console") {
		t.Fatalf("debug line must not reach the console at info level")
	}
	if !strings.Contains(console.String(), "cycle completed") {
		t.Fatalf("expected info line on console, got %q", console.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, "matchpipe_20250314.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "hidden on console") || !strings.Contains(string(data), `"cycle":1`) {
		t.Fatalf("expected debug JSON lines in file, got %q", data)
	}
}

func TestVerboseEnablesDebug(t *testing.T) {
	console := &bytes.Buffer{}
	logger, closeFn, err := New(Options{Verbose: true, Console: console})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closeFn()
	logger.Debug("debug line")
	if !strings.Contains(console.String(), "debug line") {
		t.Fatalf("expected debug output with verbose, got %q", console.String())
	}
}

func TestParseLevel(t *testing.T) {
	if lvl, err := ParseLevel(""); err != nil || lvl != zapcore.InfoLevel {
		t.Fatalf("expected info default, got %v %v", lvl, err)
	}
	if lvl, err := ParseLevel("WARN"); err != nil || lvl != zapcore.WarnLevel {
		t.Fatalf("expected warn, got %v %v", lvl, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("New must reject unknown level")
	}
}
