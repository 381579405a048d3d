package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"stenotouch/internal/config"
)

// CrashReport is written as JSON when a panic is recovered.
type CrashReport struct {
	Timestamp    time.Time      `json:"timestamp"`
	Version      string         `json:"version"`
	GOOS         string         `json:"goos"`
	GOARCH       string         `json:"goarch"`
	NumGoroutine int            `json:"num_goroutine"`
	PanicValue   string         `json:"panic_value"`
	StackTrace   string         `json:"stack_trace"`
	Component    string         `json:"component,omitempty"`
	Layout       string         `json:"layout,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// CrashHandlerConfig configures the crash handler.
type CrashHandlerConfig struct {
	// CrashDir is the directory to write crash dumps.
	CrashDir string

	// Version is the application version.
	Version string

	// Component is the component name.
	Component string

	// Logger receives a one-line summary of each crash.
	Logger *slog.Logger

	// OnCrash is called after a crash is recorded.
	OnCrash func(CrashReport)
}

// CrashHandler recovers panics and records crash reports.
type CrashHandler struct {
	mu        sync.Mutex
	crashDir  string
	version   string
	component string
	layout    string
	logger    *slog.Logger
	onCrash   func(CrashReport)
	seq       int
}

// DefaultCrashDir returns the platform-specific default crash directory.
func DefaultCrashDir() string {
	return filepath.Join(config.PlatformDataDir(), "crashes")
}

// NewCrashHandler creates a new CrashHandler.
func NewCrashHandler(cfg *CrashHandlerConfig) *CrashHandler {
	if cfg == nil {
		cfg = &CrashHandlerConfig{}
	}
	dir := cfg.CrashDir
	if dir == "" {
		dir = DefaultCrashDir()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CrashHandler{
		crashDir:  dir,
		version:   cfg.Version,
		component: cfg.Component,
		logger:    logger,
		onCrash:   cfg.OnCrash,
	}
}

// SetLayout records the active layout in later reports.
func (h *CrashHandler) SetLayout(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.layout = name
}

// Guard runs fn and turns a panic into a crash report. It returns true
// when fn panicked.
func (h *CrashHandler) Guard(contextInfo map[string]any, fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			h.HandlePanic(r, contextInfo)
		}
	}()
	fn()
	return false
}

// HandlePanic records a crash report for panicValue.
func (h *CrashHandler) HandlePanic(panicValue any, contextInfo map[string]any) {
	h.mu.Lock()
	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprint(panicValue),
		StackTrace:   string(debug.Stack()),
		Component:    h.component,
		Layout:       h.layout,
		Context:      contextInfo,
	}
	h.seq++
	path, err := h.writeCrashDump(report, h.seq)
	onCrash := h.onCrash
	h.mu.Unlock()

	if err != nil {
		h.logger.Error("panic recovered, crash report not written", "panic", report.PanicValue, "error", err)
	} else {
		h.logger.Error("panic recovered", "panic", report.PanicValue, "report", path)
	}
	if onCrash != nil {
		onCrash(report)
	}
}

func (h *CrashHandler) writeCrashDump(report CrashReport, seq int) (string, error) {
	if err := os.MkdirAll(h.crashDir, 0750); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}
	name := fmt.Sprintf("crash-%s-%03d.json", report.Timestamp.Format("20060102-150405"), seq)
	path := filepath.Join(h.crashDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

func (h *CrashHandler) files() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Reports returns stored crash reports, oldest first. Unreadable files
// are skipped.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	files, err := h.files()
	if err != nil {
		return nil, err
	}
	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Prune removes crash reports older than maxAge.
func (h *CrashHandler) Prune(maxAge time.Duration) error {
	files, err := h.files()
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		if info, err := os.Stat(file); err == nil && info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}

// Clear removes all crash reports.
func (h *CrashHandler) Clear() error {
	files, err := h.files()
	if err != nil {
		return err
	}
	for _, file := range files {
		os.Remove(file)
	}
	return nil
}
