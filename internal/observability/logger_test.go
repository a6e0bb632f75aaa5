package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
	}{
		{
			name:   "json format",
			config: LoggingConfig{Level: "info", Format: "json"},
		},
		{
			name:   "text format to stderr",
			config: LoggingConfig{Level: "debug", Format: "text", Output: "stderr"},
		},
		{
			name:   "default format",
			config: LoggingConfig{Level: "warn"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if logger := NewLogger(tt.config); logger == nil {
				t.Fatal("NewLogger returned nil")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.name); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNewLoggerTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "info", Format: "json"})

	logger.Info("flush completed", "channels", 2, "container", "log")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "flush completed" {
		t.Errorf("msg = %v, want flush completed", entry["msg"])
	}
	if entry["container"] != "log" {
		t.Errorf("container = %v, want log", entry["container"])
	}
}

func TestNewLoggerTo_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "info", Format: "text"})

	logger.Info("not enough data points collected", "channel", "pos")

	output := buf.String()
	if !strings.Contains(output, "channel=pos") {
		t.Errorf("text output should contain channel=pos, got: %s", output)
	}
}

func TestNewLoggerTo_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "warn", Format: "text"})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("messages below warn should be filtered, got: %s", output)
	}
	if !strings.Contains(output, "warn message") {
		t.Errorf("warn message missing, got: %s", output)
	}
}

func TestNewLoggerTo_AddSource(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Format: "json", AddSource: true})

	logger.Info("with source")

	if !strings.Contains(buf.String(), `"source"`) {
		t.Errorf("expected source attribute, got: %s", buf.String())
	}
}
