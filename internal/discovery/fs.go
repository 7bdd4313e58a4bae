package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoConfig indicates that no config file was found during discovery.
var ErrNoConfig = errors.New("no config file discovered")

// Candidates lists the file names searched, in order, when no explicit path is given.
var Candidates = []string{".matchpipe.yml", ".matchpipe.yaml", "matchpipe.yml", "matchpipe.yaml"}

// ConfigFile returns the config file path. An explicit path is validated and
// returned relative to root when possible. Otherwise the first existing
// candidate in root wins.
func ConfigFile(root, explicit string) (string, error) {
	if explicit != "" {
		return resolveExplicit(root, explicit)
	}

	for _, name := range Candidates {
		path := filepath.Join(root, name)
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("stat %q: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		return mustRelOrClean(root, path), nil
	}
	return "", ErrNoConfig
}

func resolveExplicit(root, input string) (string, error) {
	cleaned := input
	if !filepath.IsAbs(cleaned) {
		cleaned = filepath.Join(root, cleaned)
	}
	info, err := os.Stat(cleaned)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("config %q not found", input)
		}
		return "", fmt.Errorf("stat %q: %w", input, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config %q is a directory", input)
	}
	return mustRelOrClean(root, cleaned), nil
}

func mustRelOrClean(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.Clean(path)
	}
	rel = filepath.Clean(rel)
	if rel == "." || strings.HasPrefix(rel, "..") {
		return filepath.Clean(path)
	}
	return rel
}
