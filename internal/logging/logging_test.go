package logging_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"emp/internal/logging"
)

func TestConsoleFormatWritesComponentPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emp.log")
	logger, err := logging.New(logging.Options{
		Level:       "debug",
		Format:      "console",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logging.NewComponentLogger(logger, "router").Info("message queued", "dest", "abc123")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "INFO router: message queued") {
		t.Fatalf("unexpected line %q", line)
	}
	if !strings.Contains(line, "dest=abc123") {
		t.Fatalf("missing attr in %q", line)
	}
}

func TestJSONFormatEmitsLowercaseLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emp.log")
	logger, err := logging.New(logging.Options{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Warn("slow poll", "elapsed", "6s")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, data)
	}
	if entry["level"] != "warn" {
		t.Fatalf("level = %v", entry["level"])
	}
	if entry["msg"] != "slow poll" {
		t.Fatalf("msg = %v", entry["msg"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatal("expected ts key")
	}
}

func TestLevelFiltersOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emp.log")
	logger, err := logging.New(logging.Options{
		Level:       "warn",
		Format:      "console",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("suppressed")
	logger.Warn("kept")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "suppressed") {
		t.Fatal("info line should have been filtered")
	}
	if !strings.Contains(string(data), "kept") {
		t.Fatal("warn line missing")
	}
}

func TestUnsupportedFormatFails(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("unsupported format must fail")
	}
}
