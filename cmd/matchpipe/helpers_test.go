package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

const pipelineYAML = `schedule:
  interval: 1h
stages:
  - name: Data Fetcher
    builtin: json_file
    options:
      path: data.json
  - name: Data Merger
    run: cat > merged.json
    output: merged.json
  - tally
`

// workspace writes a config and fixture data into a temp dir and chdirs into it.
func workspace(t *testing.T, configYAML string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".matchpipe.yml"), []byte(configYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "data.json"), []byte(`{"matches": [{"id": 1}, {"id": 2}, {"id": 3}]}`), 0o644); err != nil {
		t.Fatalf("write data: %v", err)
	}
	chdir(t, dir)
	return dir
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--log-dir", ""))
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %q: %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore dir: %v", err)
		}
	})
}

func diffStrings(want, got string) string {
	if want == got {
		return ""
	}
	return "--- want\n" + want + "\n--- got\n" + got
}
