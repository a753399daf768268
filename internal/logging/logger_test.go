package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// readLogLines parses each JSON line of the workflow log.
func readLogLines(t *testing.T, projectDir string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(projectDir, "workflow.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", line, err)
		}
		lines = append(lines, entry)
	}
	return lines
}

func TestLoggerWritesJSONToProjectDir(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("step completed", "step", "brainstorming", "duration", "3s")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLogLines(t, dir)
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(lines))
	}
	if lines[0]["msg"] != "step completed" {
		t.Errorf("msg = %v", lines[0]["msg"])
	}
	if lines[0]["step"] != "brainstorming" {
		t.Errorf("step attribute = %v", lines[0]["step"])
	}
	if lines[0]["level"] != "INFO" {
		t.Errorf("level = %v", lines[0]["level"])
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		wantLines int
	}{
		{LevelDebug, 4},
		{LevelInfo, 3},
		{LevelWarn, 2},
		{LevelError, 1},
		{"garbage", 3}, // unknown levels default to INFO
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			dir := t.TempDir()
			logger, err := NewLogger(dir, tt.level)
			if err != nil {
				t.Fatal(err)
			}
			logger.Debug("d")
			logger.Info("i")
			logger.Warn("w")
			logger.Error("e")
			if err := logger.Close(); err != nil {
				t.Fatal(err)
			}

			if got := len(readLogLines(t, dir)); got != tt.wantLines {
				t.Errorf("level %s wrote %d lines, want %d", tt.level, got, tt.wantLines)
			}
		})
	}
}

func TestChildLoggersCarryAttributes(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatal(err)
	}
	child := logger.WithRun("run-123").WithStep("architecture")
	child.Info("executing")
	logger.Info("plain")
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	lines := readLogLines(t, dir)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0]["run_id"] != "run-123" || lines[0]["step"] != "architecture" {
		t.Errorf("child attributes missing: %v", lines[0])
	}
	if _, ok := lines[1]["run_id"]; ok {
		t.Error("parent logger leaked the child's attributes")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.Info("discarded")
	logger.WithStep("x").Error("also discarded")
	if err := logger.Close(); err != nil {
		t.Errorf("Close on a nop logger: %v", err)
	}
}
