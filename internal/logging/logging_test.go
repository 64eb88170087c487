package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "DEBUG", want: slog.LevelDebug},
		{in: "warn", want: slog.LevelWarn},
		{in: "WARNING", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "info", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
		{in: "verbose", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ParseLevel(tt.in)); diff != "" {
			t.Errorf("ParseLevel(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestNamed(t *testing.T) {
	var buf bytes.Buffer
	log := Named(New(&buf, "info"), "collector.gmail")
	log.Info("collected", "count", 3)

	out := buf.String()
	if !strings.Contains(out, "logger=lettercast.collector.gmail") {
		t.Errorf("expected namespaced logger attribute, got %q", out)
	}
	if !strings.Contains(out, "count=3") {
		t.Errorf("expected count attribute, got %q", out)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")
	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line leaked at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("expected warn line, got %q", out)
	}
}

func TestSetupIsIdempotent(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() {
		_ = Close()
		slog.SetDefault(prev)
	})

	dir := t.TempDir()
	if err := Setup("info", dir); err != nil {
		t.Fatalf("setup: %v", err)
	}
	first := slog.Default()

	if err := Setup("debug", t.TempDir()); err != nil {
		t.Fatalf("second setup: %v", err)
	}
	if slog.Default() != first {
		t.Error("second Setup replaced the default logger")
	}

	For("pipeline").Info("hello from test")

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "logger=lettercast.pipeline") {
		t.Errorf("log file missing child logger line: %q", data)
	}
}
