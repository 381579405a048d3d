// Package config handles configuration loading, validation, and management for stenotouch.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete keyboard configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Keyboard selects the layout.
	Keyboard KeyboardConfig `toml:"keyboard" json:"keyboard" yaml:"keyboard"`

	// Geometry holds the values layout documents refer to by name.
	Geometry GeometryConfig `toml:"geometry" json:"geometry" yaml:"geometry"`

	// Joystick tunes the continuous input modality.
	Joystick JoystickConfig `toml:"joystick" json:"joystick" yaml:"joystick"`

	// Output configures where strokes go.
	Output OutputConfig `toml:"output" json:"output" yaml:"output"`

	// Journal configures the stroke journal.
	Journal JournalConfig `toml:"journal" json:"journal" yaml:"journal"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configuration.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// KeyboardConfig selects the active layout.
type KeyboardConfig struct {
	// Layout is the name of the layout to open.
	Layout string `toml:"layout" json:"layout" yaml:"layout"`

	// LayoutsDir holds user layout documents. They shadow built-in layouts
	// of the same name.
	LayoutsDir string `toml:"layouts_dir" json:"layouts_dir" yaml:"layouts_dir"`

	// Scale multiplies every geometry value, in device pixels per unit.
	Scale float64 `toml:"scale" json:"scale" yaml:"scale"`
}

// GeometryConfig holds key dimensions and per-finger adjustments.
type GeometryConfig struct {
	KeyWidth  float64 `toml:"key_width" json:"key_width" yaml:"key_width"`
	KeyHeight float64 `toml:"key_height" json:"key_height" yaml:"key_height"`
	KeyGap    float64 `toml:"key_gap" json:"key_gap" yaml:"key_gap"`

	// Stagger shifts each finger's column down, in key heights.
	Stagger StaggerConfig `toml:"stagger" json:"stagger" yaml:"stagger"`

	// BankAngle rotates each bank, in degrees. The right bank mirrors it.
	BankAngle float64 `toml:"bank_angle" json:"bank_angle" yaml:"bank_angle"`

	// VowelAngle rotates each vowel group, in degrees.
	VowelAngle float64 `toml:"vowel_angle" json:"vowel_angle" yaml:"vowel_angle"`

	// BankGap separates the left and right banks.
	BankGap float64 `toml:"bank_gap" json:"bank_gap" yaml:"bank_gap"`
}

// StaggerConfig is the column offset per finger.
type StaggerConfig struct {
	Pinky  float64 `toml:"pinky" json:"pinky" yaml:"pinky"`
	Ring   float64 `toml:"ring" json:"ring" yaml:"ring"`
	Middle float64 `toml:"middle" json:"middle" yaml:"middle"`
	Index  float64 `toml:"index" json:"index" yaml:"index"`
}

// JoystickConfig tunes the joystick modality.
type JoystickConfig struct {
	// MaxRadius bounds the displacement, in geometry units.
	MaxRadius float64 `toml:"max_radius" json:"max_radius" yaml:"max_radius"`

	// NeutralThreshold is the fraction of MaxRadius below which no key is
	// selected.
	NeutralThreshold float64 `toml:"neutral_threshold" json:"neutral_threshold" yaml:"neutral_threshold"`

	// CompoundThreshold is the fraction of MaxRadius below which a vertical
	// joystick selects its compound key.
	CompoundThreshold float64 `toml:"compound_threshold" json:"compound_threshold" yaml:"compound_threshold"`

	// SectorOffset rotates the direction sectors, in degrees.
	SectorOffset float64 `toml:"sector_offset" json:"sector_offset" yaml:"sector_offset"`

	// CatchRadius is how far from a joystick a touch may begin. 0 means
	// twice MaxRadius.
	CatchRadius float64 `toml:"catch_radius" json:"catch_radius" yaml:"catch_radius"`

	// IdleResetMs re-homes every joystick after this long without touches.
	// 0 disables it.
	IdleResetMs int `toml:"idle_reset_ms" json:"idle_reset_ms" yaml:"idle_reset_ms"`
}

// IdleReset returns IdleResetMs as a duration.
func (j JoystickConfig) IdleReset() time.Duration {
	return time.Duration(j.IdleResetMs) * time.Millisecond
}

// OutputConfig configures stroke delivery.
type OutputConfig struct {
	DBus DBusConfig `toml:"dbus" json:"dbus" yaml:"dbus"`
}

// DBusConfig addresses the steno engine on the bus.
type DBusConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Bus is "session" or "system".
	Bus string `toml:"bus" json:"bus" yaml:"bus"`

	Destination string `toml:"destination" json:"destination" yaml:"destination"`
	ObjectPath  string `toml:"object_path" json:"object_path" yaml:"object_path"`
	Interface   string `toml:"interface" json:"interface" yaml:"interface"`
	Method      string `toml:"method" json:"method" yaml:"method"`
}

// JournalConfig configures the SQLite stroke journal.
type JournalConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path    string `toml:"path" json:"path" yaml:"path"`

	// BufferSize is the number of strokes queued before new ones are dropped.
	BufferSize int `toml:"buffer_size" json:"buffer_size" yaml:"buffer_size"`

	// BatchSize is the number of strokes written per transaction.
	BatchSize int `toml:"batch_size" json:"batch_size" yaml:"batch_size"`

	// FlushIntervalMs bounds how long a stroke waits in the queue.
	FlushIntervalMs int `toml:"flush_interval_ms" json:"flush_interval_ms" yaml:"flush_interval_ms"`
}

// FlushInterval returns FlushIntervalMs as a duration.
func (j JournalConfig) FlushInterval() time.Duration {
	return time.Duration(j.FlushIntervalMs) * time.Millisecond
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log destination: "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when output is "file" or "both").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of rotated log files.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to gzip rotated log files.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Listen is the HTTP address serving /metrics.
	Listen string `toml:"listen" json:"listen" yaml:"listen"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Keyboard: KeyboardConfig{
			Layout:     "classic",
			LayoutsDir: filepath.Join(PlatformConfigDir(), "layouts"),
			Scale:      1,
		},
		Geometry: GeometryConfig{
			KeyWidth:   64,
			KeyHeight:  72,
			KeyGap:     4,
			Stagger:    StaggerConfig{Pinky: 0.5, Ring: 0.15, Middle: 0, Index: 0.1},
			BankAngle:  12,
			VowelAngle: 20,
			BankGap:    96,
		},
		Joystick: JoystickConfig{
			MaxRadius:         48,
			NeutralThreshold:  0.5,
			CompoundThreshold: 0.75,
			SectorOffset:      22.5,
			CatchRadius:       0,
			IdleResetMs:       0,
		},
		Output: OutputConfig{
			DBus: DBusConfig{
				Enabled:     false,
				Bus:         "session",
				Destination: "org.stenotouch.Engine",
				ObjectPath:  "/org/stenotouch/Engine",
				Interface:   "org.stenotouch.Engine",
				Method:      "SendStroke",
			},
		},
		Journal: JournalConfig{
			Enabled:         true,
			Path:            filepath.Join(PlatformDataDir(), "strokes.db"),
			BufferSize:      256,
			BatchSize:       32,
			FlushIntervalMs: 1000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "stenotouch.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9461",
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configured files live in.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Journal.Path),
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with STENOTOUCH_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("STENOTOUCH_LAYOUT"); v != "" {
		c.Keyboard.Layout = v
	}
	if v := os.Getenv("STENOTOUCH_LAYOUTS_DIR"); v != "" {
		c.Keyboard.LayoutsDir = v
	}
	if v := os.Getenv("STENOTOUCH_SCALE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Keyboard.Scale = f
		}
	}

	if v := os.Getenv("STENOTOUCH_JOURNAL_PATH"); v != "" {
		c.Journal.Path = v
	}
	if v := os.Getenv("STENOTOUCH_JOURNAL_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Journal.Enabled = b
		}
	}

	if v := os.Getenv("STENOTOUCH_DBUS_DESTINATION"); v != "" {
		c.Output.DBus.Destination = v
		c.Output.DBus.Enabled = true
	}

	if v := os.Getenv("STENOTOUCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("STENOTOUCH_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}

	if v := os.Getenv("STENOTOUCH_METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
		c.Metrics.Enabled = true
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Version:  c.Version,
		Keyboard: c.Keyboard,
		Geometry: c.Geometry,
		Joystick: c.Joystick,
		Output:   c.Output,
		Journal:  c.Journal,
		Logging:  c.Logging,
		Metrics:  c.Metrics,
	}
}
