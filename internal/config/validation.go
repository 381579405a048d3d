package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether any error concerns field.
func (e ValidationErrors) Has(field string) bool {
	for _, err := range e {
		if err.Field == field {
			return true
		}
	}
	return false
}

// ErrInvalidConfig matches every ValidationErrors with errors.Is.
var ErrInvalidConfig = errors.New("invalid configuration")

// Is makes errors.Is(err, ErrInvalidConfig) hold for validation failures.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateKeyboard(&c.Keyboard)...)
	errs = append(errs, validateGeometry(&c.Geometry)...)
	errs = append(errs, validateJoystick(&c.Joystick)...)
	errs = append(errs, validateOutput(&c.Output)...)
	errs = append(errs, validateJournal(&c.Journal)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateKeyboard(k *KeyboardConfig) ValidationErrors {
	var errs ValidationErrors
	if k.Layout == "" {
		errs = append(errs, *RequiredFieldError("keyboard.layout"))
	}
	if k.Scale <= 0 {
		errs = append(errs, ValidationError{
			Field:   "keyboard.scale",
			Message: "scale must be positive",
		})
	}
	return errs
}

func validateGeometry(g *GeometryConfig) ValidationErrors {
	var errs ValidationErrors
	if g.KeyWidth <= 0 {
		errs = append(errs, ValidationError{Field: "geometry.key_width", Message: "key width must be positive"})
	}
	if g.KeyHeight <= 0 {
		errs = append(errs, ValidationError{Field: "geometry.key_height", Message: "key height must be positive"})
	}
	if g.KeyGap < 0 {
		errs = append(errs, ValidationError{Field: "geometry.key_gap", Message: "key gap cannot be negative"})
	}
	if g.BankGap < 0 {
		errs = append(errs, ValidationError{Field: "geometry.bank_gap", Message: "bank gap cannot be negative"})
	}
	for name, v := range map[string]float64{
		"geometry.bank_angle":  g.BankAngle,
		"geometry.vowel_angle": g.VowelAngle,
	} {
		if v < -90 || v > 90 {
			errs = append(errs, *RangeError(name, -90, 90))
		}
	}
	for name, v := range map[string]float64{
		"geometry.stagger.pinky":  g.Stagger.Pinky,
		"geometry.stagger.ring":   g.Stagger.Ring,
		"geometry.stagger.middle": g.Stagger.Middle,
		"geometry.stagger.index":  g.Stagger.Index,
	} {
		if v < -2 || v > 2 {
			errs = append(errs, *RangeError(name, -2, 2))
		}
	}
	return errs
}

func validateJoystick(j *JoystickConfig) ValidationErrors {
	var errs ValidationErrors
	if j.MaxRadius <= 0 {
		errs = append(errs, ValidationError{Field: "joystick.max_radius", Message: "max radius must be positive"})
	}
	if j.NeutralThreshold <= 0 || j.NeutralThreshold >= 1 {
		errs = append(errs, *RangeError("joystick.neutral_threshold", 0, 1))
	}
	if j.CompoundThreshold <= 0 || j.CompoundThreshold > 1 {
		errs = append(errs, *RangeError("joystick.compound_threshold", 0, 1))
	} else if j.CompoundThreshold < j.NeutralThreshold {
		errs = append(errs, ValidationError{
			Field:   "joystick.compound_threshold",
			Message: "compound threshold must not be below the neutral threshold",
		})
	}
	if j.SectorOffset < 0 || j.SectorOffset >= 45 {
		errs = append(errs, *RangeError("joystick.sector_offset", 0, 45))
	}
	if j.CatchRadius < 0 {
		errs = append(errs, ValidationError{Field: "joystick.catch_radius", Message: "catch radius cannot be negative"})
	}
	if j.IdleResetMs < 0 {
		errs = append(errs, ValidationError{Field: "joystick.idle_reset_ms", Message: "idle reset cannot be negative"})
	}
	return errs
}

func validateOutput(o *OutputConfig) ValidationErrors {
	var errs ValidationErrors
	d := &o.DBus
	if !d.Enabled {
		return nil
	}
	switch d.Bus {
	case "session", "system":
	default:
		errs = append(errs, ValidationError{
			Field:   "output.dbus.bus",
			Message: fmt.Sprintf("invalid bus: %s (valid: session, system)", d.Bus),
		})
	}
	if d.Destination == "" {
		errs = append(errs, *RequiredFieldError("output.dbus.destination"))
	}
	if !strings.HasPrefix(d.ObjectPath, "/") {
		errs = append(errs, ValidationError{
			Field:   "output.dbus.object_path",
			Message: "object path must start with /",
		})
	}
	if d.Interface == "" {
		errs = append(errs, *RequiredFieldError("output.dbus.interface"))
	}
	if d.Method == "" {
		errs = append(errs, *RequiredFieldError("output.dbus.method"))
	}
	return errs
}

func validateJournal(j *JournalConfig) ValidationErrors {
	var errs ValidationErrors
	if !j.Enabled {
		return nil
	}
	if j.Path == "" {
		errs = append(errs, *RequiredFieldError("journal.path"))
	}
	if j.BufferSize < 1 {
		errs = append(errs, ValidationError{Field: "journal.buffer_size", Message: "buffer size must be at least 1"})
	}
	if j.BatchSize < 1 {
		errs = append(errs, ValidationError{Field: "journal.batch_size", Message: "batch size must be at least 1"})
	}
	if j.FlushIntervalMs < 10 {
		errs = append(errs, ValidationError{Field: "journal.flush_interval_ms", Message: "flush interval must be at least 10ms"})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file' or 'both'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}
	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		return ValidationErrors{{
			Field:   "metrics.listen",
			Message: fmt.Sprintf("invalid listen address %q: %v", m.Listen, err),
		}}
	}
	return nil
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
