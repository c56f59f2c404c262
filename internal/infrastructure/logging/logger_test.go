package logging

import (
	"log/slog"
	"testing"

	"github.com/quarterline/avops-core/internal/infrastructure/config"
)

func TestNew_Formats(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingConfig
	}{
		{
			name: "json to stdout",
			cfg:  config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		},
		{
			name: "text to stderr",
			cfg:  config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"},
		},
		{
			name: "unknown format falls back to json",
			cfg:  config.LoggingConfig{Level: "info", Format: "xml", Output: "stdout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.cfg, "1.0.0")
			if logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.expected {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestWith(t *testing.T) {
	logger := Default()
	child := logger.With("component", "test")
	if child == nil || child.Logger == nil {
		t.Fatal("With() returned nil logger")
	}
	if child == logger {
		t.Error("With() should return a new logger")
	}
}
