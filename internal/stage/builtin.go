package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Builtin stage names.
const (
	BuiltinHTTPJSON = "http_json"
	BuiltinJSONFile = "json_file"
	BuiltinSnapshot = "snapshot"
	BuiltinTally    = "tally"
)

// RecordsKey is the payload key the executor reads the processed-record count from.
const RecordsKey = "total_matches"

func newHTTPJSON(name string, options map[string]string) (Stage, error) {
	rawURL := options["url"]
	if rawURL == "" {
		return nil, fmt.Errorf("%s: url option required", BuiltinHTTPJSON)
	}
	endpoint, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%s: parse url: %w", BuiltinHTTPJSON, err)
	}
	query := endpoint.Query()
	for k, v := range options {
		if key, ok := strings.CutPrefix(k, "query."); ok {
			query.Set(key, os.ExpandEnv(v))
		}
	}
	endpoint.RawQuery = query.Encode()

	timeout := 30 * time.Second
	if raw := options["timeout"]; raw != "" {
		timeout, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: timeout: %w", BuiltinHTTPJSON, err)
		}
	}
	client := &http.Client{Timeout: timeout}
	target := endpoint.String()

	return NewFunc(name, func(ctx context.Context, _ any, _ time.Duration) (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("http get: new request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http get %q: %w", endpoint.Redacted(), err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("http get %q: status %d", endpoint.Redacted(), resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("http get %q: read body: %w", endpoint.Redacted(), err)
		}
		var payload any
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("http get %q: decode json: %w", endpoint.Redacted(), err)
		}
		return payload, nil
	}), nil
}

func newJSONFile(name string, options map[string]string) (Stage, error) {
	path := options["path"]
	if path == "" {
		return nil, fmt.Errorf("%s: path option required", BuiltinJSONFile)
	}
	return NewFunc(name, func(context.Context, any, time.Duration) (any, error) {
		return readJSONFile(path, false)
	}), nil
}

// snapshotDocument is the on-disk layout of a history snapshot.
type snapshotDocument struct {
	LastUpdated time.Time `json:"last_updated"`
	History     []any     `json:"history"`
}

func newSnapshot(name string, options map[string]string) (Stage, error) {
	path := options["path"]
	if path == "" {
		return nil, fmt.Errorf("%s: path option required", BuiltinSnapshot)
	}
	mode := options["mode"]
	if mode == "" {
		mode = "history"
	}
	if mode != "history" && mode != "overwrite" {
		return nil, fmt.Errorf("%s: unsupported mode %q", BuiltinSnapshot, mode)
	}
	maxHistory := 0
	if raw := options["max_history"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%s: max_history must be a non-negative integer", BuiltinSnapshot)
		}
		maxHistory = n
	}

	return NewFunc(name, func(_ context.Context, input any, _ time.Duration) (any, error) {
		var doc any = input
		if mode == "history" {
			history, err := loadHistory(path)
			if err != nil {
				return nil, err
			}
			history = append(history, input)
			if maxHistory > 0 && len(history) > maxHistory {
				history = history[len(history)-maxHistory:]
			}
			doc = snapshotDocument{LastUpdated: time.Now().UTC(), History: history}
		}
		if err := writeJSONFile(path, doc); err != nil {
			return nil, err
		}
		return input, nil
	}), nil
}

func loadHistory(path string) ([]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot %q: %w", path, err)
	}
	var doc snapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		// A file not written by this stage is kept as the first history entry.
		var legacy any
		if jsonErr := json.Unmarshal(data, &legacy); jsonErr != nil {
			return nil, fmt.Errorf("decode snapshot %q: %w", path, err)
		}
		return []any{legacy}, nil
	}
	return doc.History, nil
}

func writeJSONFile(path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot %q: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir %q: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %q: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot %q: %w", path, err)
	}
	return nil
}

func newTally(name string, options map[string]string) (Stage, error) {
	field := options["field"]
	if field == "" {
		field = "matches"
	}
	return NewFunc(name, func(_ context.Context, input any, _ time.Duration) (any, error) {
		m, ok := input.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected JSON object, got %T", BuiltinTally, input)
		}
		out := make(map[string]any, len(m)+1)
		for k, v := range m {
			out[k] = v
		}
		count := 0
		switch v := m[field].(type) {
		case []any:
			count = len(v)
		case map[string]any:
			count = len(v)
		}
		out[RecordsKey] = count
		return out, nil
	}), nil
}
