package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

// resetLogger resets the logger to default state for test isolation
func resetLogger() {
	_ = Init(Options{})
}

func TestInit_DefaultLevel_Info(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := Init(Options{Output: buf}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer resetLogger()

	Info("page fetched")
	if !strings.Contains(buf.String(), "page fetched") {
		t.Error("Info message should be logged at default level")
	}

	buf.Reset()
	Debug("harvest state")
	if strings.Contains(buf.String(), "harvest state") {
		t.Error("Debug message should not be logged at default level")
	}
}

func TestInit_DebugLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	_ = Init(Options{Debug: true, Output: buf})
	defer resetLogger()

	Debug("harvest state", "to", "advancing")
	if !strings.Contains(buf.String(), "advancing") {
		t.Error("Debug message should be logged when Debug=true")
	}
}

func TestInit_ExplicitLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	_ = Init(Options{Level: "warn", Output: buf})
	defer resetLogger()

	Info("harvest starting")
	Warn("skipping record")

	output := buf.String()
	if strings.Contains(output, "harvest starting") {
		t.Error("Info should not be logged at warn level")
	}
	if !strings.Contains(output, "skipping record") {
		t.Error("Warn should be logged at warn level")
	}
}

func TestInit_UnknownLevel(t *testing.T) {
	if err := Init(Options{Level: "chatty", Output: &bytes.Buffer{}}); err == nil {
		t.Error("expected error for unknown level")
	}
	resetLogger()
}

func TestInit_QuietOverridesDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	_ = Init(Options{Debug: true, Quiet: true, Output: buf})
	defer resetLogger()

	Debug("debug message")
	Warn("warn message")
	Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "warn message") {
		t.Error("only errors should be logged when Quiet=true")
	}
	if !strings.Contains(output, "error message") {
		t.Error("Error should be logged when Quiet=true")
	}
}

func TestInit_JSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	_ = Init(Options{JSON: true, Output: buf})
	defer resetLogger()

	Info("harvest complete", "records", 96)

	output := buf.String()
	if !strings.HasPrefix(strings.TrimSpace(output), "{") {
		t.Errorf("JSON format should produce JSON output, got %q", output)
	}
	if !strings.Contains(output, `"records":96`) {
		t.Errorf("expected records attribute, got %q", output)
	}
}

func TestInit_CustomLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	custom := slog.New(slog.NewTextHandler(buf, nil))
	_ = Init(Options{Logger: custom, Quiet: true})
	defer resetLogger()

	Info("from custom logger")
	if !strings.Contains(buf.String(), "from custom logger") {
		t.Error("custom logger should ignore the other options")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLevel(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestForSource(t *testing.T) {
	buf := &bytes.Buffer{}
	_ = Init(Options{Output: buf})
	defer resetLogger()

	ForSource("cratejoy").Info("page fetched")

	if !strings.Contains(buf.String(), "source=cratejoy") {
		t.Errorf("expected source attribute, got %q", buf.String())
	}
}

func TestContextVariants(t *testing.T) {
	buf := &bytes.Buffer{}
	_ = Init(Options{Debug: true, Output: buf})
	defer resetLogger()

	ctx := context.Background()
	DebugContext(ctx, "debug with context")
	InfoContext(ctx, "info with context")
	WarnContext(ctx, "warn with context")
	ErrorContext(ctx, "error with context")

	for _, msg := range []string{"debug with context", "info with context", "warn with context", "error with context"} {
		if !strings.Contains(buf.String(), msg) {
			t.Errorf("expected %q in output", msg)
		}
	}
}

func TestWith_ReturnsLoggerWithAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	_ = Init(Options{Output: buf})
	defer resetLogger()

	With("page", 3).Info("advancing")

	if !strings.Contains(buf.String(), "page=3") {
		t.Errorf("expected attributes in output, got %q", buf.String())
	}
}
