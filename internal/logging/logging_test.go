package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stenotouch/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"invalid", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	for _, level := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		parsed, err := ParseLevel(LevelString(level))
		if err != nil || parsed != level {
			t.Errorf("round trip of %v gave %v (%v)", level, parsed, err)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("expected json, got %v (%v)", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("expected text default, got %v (%v)", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestFromConfig(t *testing.T) {
	section := config.DefaultConfig().Logging
	section.Level = "debug"
	section.Format = "json"
	section.MaxSizeMB = 5

	cfg, err := FromConfig(section)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if cfg.Level != LevelDebug || cfg.Format != FormatJSON || cfg.MaxSize != 5 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Component != "stenotouch" {
		t.Errorf("expected default component, got %q", cfg.Component)
	}

	section.Level = "loud"
	if _, err := FromConfig(section); err == nil {
		t.Error("expected error for bad level")
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{
		Level:     LevelInfo,
		Format:    FormatJSON,
		Component: "test",
		Writer:    &buf,
	})
	if err != nil {
		t.Fatalf("failed to create JSON logger: %v", err)
	}
	defer logger.Close()

	logger.Info("stroke emitted", "steno", "STKPW")
	logger.Debug("hidden")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not a single JSON line: %v: %q", err, buf.String())
	}
	if entry["msg"] != "stroke emitted" || entry["steno"] != "STKPW" || entry["component"] != "test" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Level: LevelDebug, Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Component("chord").Debug("touch began", "id", 3)
	out := buf.String()
	if !strings.Contains(out, "component=chord") || !strings.Contains(out, "id=3") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "stenotouch.log")
	logger, err := New(&Config{Level: LevelInfo, Output: "file", FilePath: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("layout opened", "layout", "classic")
	if err := logger.Sync(); err != nil {
		t.Errorf("sync failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "layout=classic") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Level: LevelInfo, Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("bus connected", "auth_token", "hunter2", "key", "S-")

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Errorf("token leaked: %q", out)
	}
	if !strings.Contains(out, "key=S-") {
		t.Errorf("steno key attribute should be kept: %q", out)
	}
}

func TestDiscard(t *testing.T) {
	if Discard().Enabled(context.Background(), LevelError) {
		t.Error("discard logger should be disabled at every level")
	}
}

func TestFileRotatorBySize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	rotator, err := NewFileRotator(&Config{FilePath: path, MaxSize: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer rotator.Close()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rotator.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}

	line := bytes.Repeat([]byte("x"), 600*1024)
	for i := 0; i < 5; i++ {
		n, err := rotator.Write(line)
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if n != len(line) {
			t.Errorf("expected to write %d bytes, wrote %d", len(line), n)
		}
	}

	files := rotator.LogFiles()
	// current file plus at most MaxBackups rotated ones
	if len(files) != 3 {
		t.Errorf("expected 3 log files, got %d: %v", len(files), files)
	}
}

func TestFileRotatorByDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	rotator, err := NewFileRotator(&Config{FilePath: path, MaxSize: 100, MaxBackups: 5})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer rotator.Close()

	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	rotator.now = func() time.Time { return day }
	rotator.opened = day

	rotator.Write([]byte("first\n"))
	day = day.Add(2 * time.Minute)
	rotator.Write([]byte("second\n"))

	if files := rotator.LogFiles(); len(files) != 2 {
		t.Errorf("expected a rotation at midnight, got %v", files)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "second\n" {
		t.Errorf("current file should hold only the new day: %q", data)
	}
}

func TestCrashHandler(t *testing.T) {
	var seen []CrashReport
	handler := NewCrashHandler(&CrashHandlerConfig{
		CrashDir:  t.TempDir(),
		Version:   "1.0.0",
		Component: "test",
		Logger:    Discard(),
		OnCrash:   func(r CrashReport) { seen = append(seen, r) },
	})
	handler.SetLayout("joystick")

	handler.HandlePanic("test panic value", map[string]any{"touches": 2})

	reports, err := handler.Reports()
	if err != nil {
		t.Fatalf("failed to get crash reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	report := reports[0]
	if report.PanicValue != "test panic value" || report.Version != "1.0.0" || report.Layout != "joystick" {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.Context["touches"] != float64(2) {
		t.Errorf("context not preserved: %v", report.Context)
	}
	if len(seen) != 1 {
		t.Errorf("OnCrash called %d times", len(seen))
	}

	if err := handler.Clear(); err != nil {
		t.Errorf("Clear failed: %v", err)
	}
	if reports, _ := handler.Reports(); len(reports) != 0 {
		t.Error("crash reports were not cleared")
	}
}

func TestCrashHandlerGuard(t *testing.T) {
	handler := NewCrashHandler(&CrashHandlerConfig{CrashDir: t.TempDir(), Logger: Discard()})

	ran := false
	if handler.Guard(nil, func() { ran = true }) {
		t.Error("Guard reported a panic for a clean call")
	}
	if !ran {
		t.Error("function did not run")
	}

	for i := 0; i < 3; i++ {
		if !handler.Guard(nil, func() { panic("intentional test panic") }) {
			t.Error("Guard did not report the panic")
		}
	}
	reports, _ := handler.Reports()
	if len(reports) != 3 {
		t.Errorf("expected 3 reports, got %d", len(reports))
	}

	if err := handler.Prune(time.Hour); err != nil {
		t.Errorf("Prune failed: %v", err)
	}
	if reports, _ := handler.Reports(); len(reports) != 3 {
		t.Error("Prune removed fresh reports")
	}
}
