package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"none", LevelNone},
		{"invalid", LevelInfo}, // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseLevel(tt.input)
			if result != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LevelNone, "NONE"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if result := tt.level.String(); result != tt.expected {
				t.Errorf("Level(%d).String() = %q, want %q", tt.level, result, tt.expected)
			}
		})
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "server.log")

	logger, err := New(LevelInfo, logPath, "test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("test message")
	logger.Debug("should not appear")
	logger.Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	if !strings.Contains(string(content), "test message") {
		t.Errorf("log file missing info message: %q", content)
	}
	if !strings.Contains(string(content), "[test]") {
		t.Errorf("log file missing prefix: %q", content)
	}
	if strings.Contains(string(content), "should not appear") {
		t.Errorf("debug message leaked at info level: %q", content)
	}
}

func TestWithPrefixChainsPrefixes(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "server.log")

	logger, err := New(LevelInfo, logPath, "ssh")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	child := logger.WithPrefix("session-7")
	child.Info("started")
	logger.Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "[ssh:session-7]") {
		t.Errorf("chained prefix missing: %q", content)
	}
}

func TestSetLevelFiltersAtRuntime(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "server.log")

	logger, err := New(LevelError, logPath, "")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("filtered")
	logger.SetLevel(LevelDebug)
	logger.Info("visible")
	logger.Close()

	content, _ := os.ReadFile(logPath)
	if strings.Contains(string(content), "filtered") {
		t.Errorf("message leaked below level: %q", content)
	}
	if !strings.Contains(string(content), "visible") {
		t.Errorf("message missing after SetLevel: %q", content)
	}
}

func TestLevelNoneDiscards(t *testing.T) {
	logger, err := New(LevelNone, "", "")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	// Must not panic or write anywhere.
	logger.Error("dropped")
	logger.Close()
}
