package discovery

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConfigFileAuto(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "matchpipe.yaml"))
	writeFile(t, filepath.Join(root, ".matchpipe.yaml"))

	got, err := ConfigFile(root, "")
	if err != nil {
		t.Fatalf("ConfigFile returned error: %v", err)
	}
	if got != ".matchpipe.yaml" {
		t.Fatalf("expected hidden candidate to win, got %q", got)
	}
}

func TestConfigFileExplicit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "pipeline.yml"))

	externalDir := t.TempDir()
	absOutside := filepath.Join(externalDir, "external.yml")
	writeFile(t, absOutside)

	got, err := ConfigFile(root, "pipeline.yml")
	if err != nil {
		t.Fatalf("ConfigFile returned error: %v", err)
	}
	if got != "pipeline.yml" {
		t.Fatalf("relative path mismatch: got %q", got)
	}

	got, err = ConfigFile(root, absOutside)
	if err != nil {
		t.Fatalf("ConfigFile returned error: %v", err)
	}
	if got != absOutside {
		t.Fatalf("absolute path mismatch: got %q expected %q", got, absOutside)
	}
}

func TestConfigFileErrors(t *testing.T) {
	root := t.TempDir()

	if _, err := ConfigFile(root, ""); !errors.Is(err, ErrNoConfig) {
		t.Fatalf("expected ErrNoConfig, got %v", err)
	}

	if _, err := ConfigFile(root, "missing.yml"); err == nil {
		t.Fatalf("expected error for missing file")
	}

	dir := filepath.Join(root, "dir.yml")
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := ConfigFile(root, "dir.yml"); err == nil {
		t.Fatalf("expected error for directory input")
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("stages: []"), 0o644); err != nil {
		t.Fatalf("write file %s: %v", path, err)
	}
}
