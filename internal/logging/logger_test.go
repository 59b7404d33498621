package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// entries decodes one JSON object per line.
func entries(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestNewLogger_WritesDebugLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")

	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Info("cycle finished", "status", "SUCCESS")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	got := entries(t, data)
	if len(got) != 1 || got[0]["msg"] != "cycle finished" || got[0]["status"] != "SUCCESS" {
		t.Errorf("entries = %v", got)
	}
}

func TestNewLogger_EmptyDirUsesStderr(t *testing.T) {
	logger, err := NewLogger("", LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.file != nil {
		t.Error("a stderr logger should not own a file")
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{LevelDebug, []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{"info", []string{"INFO", "WARN", "ERROR"}},
		{" Warn ", []string{"WARN", "ERROR"}},
		{LevelError, []string{"ERROR"}},
		{"chatty", []string{"INFO", "WARN", "ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWriterLogger(&buf, tt.level)
			logger.Debug("d")
			logger.Info("i")
			logger.Warn("w")
			logger.Error("e")

			var levels []string
			for _, e := range entries(t, buf.Bytes()) {
				levels = append(levels, e["level"].(string))
			}
			if strings.Join(levels, ",") != strings.Join(tt.want, ",") {
				t.Errorf("levels = %v, want %v", levels, tt.want)
			}
		})
	}
}

func TestChildLoggers(t *testing.T) {
	var buf bytes.Buffer
	root := NewWriterLogger(&buf, LevelDebug)

	op := root.WithCycle(3).WithPhase("build").WithOperation("lib (build)")
	op.Info("dispatched", "worker", 2)
	root.Info("untouched")
	root.With().Info("no attributes")

	got := entries(t, buf.Bytes())
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}

	want := map[string]any{"cycle": float64(3), "phase": "build", "operation": "lib (build)", "worker": float64(2)}
	for k, v := range want {
		if got[0][k] != v {
			t.Errorf("child entry %s = %v, want %v", k, got[0][k], v)
		}
	}
	for _, e := range got[1:] {
		if _, ok := e["cycle"]; ok {
			t.Errorf("parent entry inherited child attributes: %v", e)
		}
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger().WithCycle(1).With("k", "v")
	logger.Error("dropped")
	if err := logger.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		" warn":   LevelWarn,
		"Error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}

	if got := strings.Join(ValidLevels(), ","); got != "DEBUG,INFO,WARN,ERROR" {
		t.Errorf("ValidLevels() = %s", got)
	}
}

func TestClose_SharedWithChildren(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatal(err)
	}
	child := logger.WithPhase("test")
	child.Info("before close")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := child.Close(); err != nil {
		t.Errorf("child Close after root Close: %v", err)
	}
}

func TestConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatal(err)
	}

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			op := logger.WithOperation("op")
			for i := range perWorker {
				op.Info("tick", "worker", w, "i", i)
			}
		}()
	}
	wg.Wait()
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	if got := len(entries(t, data)); got != workers*perWorker {
		t.Errorf("got %d entries, want %d", got, workers*perWorker)
	}
}
