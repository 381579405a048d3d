package metrics

import (
	"time"
)

// StenoMetrics holds the keyboard metrics.
type StenoMetrics struct {
	registry *Registry

	// Counters
	StrokesTotal    *Counter
	DiscardedTotal  *Counter
	CancelledTotal  *Counter
	TouchesTotal    *Counter
	UnresolvedTotal *Counter
	RebuildsTotal   *Counter
	RecentersTotal  *Counter
	IdleResetsTotal *Counter
	SinkErrorsTotal *Counter
	ConfigReloads   *Counter

	// Gauges
	ActiveTouches  *Gauge
	OpenKeyboards  *Gauge
	UptimeSeconds  *Gauge
	LastStrokeTime *Gauge

	// Histograms
	StrokeKeys      *Histogram
	GestureDuration *Histogram
}

// startTime records when metrics were initialized.
var startTime = time.Now()

// NewStenoMetrics creates and registers the keyboard metrics.
func NewStenoMetrics(registry *Registry) *StenoMetrics {
	if registry == nil {
		registry = Default()
	}

	return &StenoMetrics{
		registry: registry,

		StrokesTotal: registry.RegisterCounter(
			"strokes_total",
			"Total number of strokes submitted",
			nil,
		),
		DiscardedTotal: registry.RegisterCounter(
			"strokes_discarded_total",
			"Gestures that ended with an empty stroke",
			nil,
		),
		CancelledTotal: registry.RegisterCounter(
			"strokes_cancelled_total",
			"Gestures cancelled before release",
			nil,
		),
		TouchesTotal: registry.RegisterCounter(
			"touches_total",
			"Total number of touch contacts",
			nil,
		),
		UnresolvedTotal: registry.RegisterCounter(
			"touches_unresolved_total",
			"Touch contacts that began outside every key",
			nil,
		),
		RebuildsTotal: registry.RegisterCounter(
			"layout_rebuilds_total",
			"Number of key index rebuilds",
			nil,
		),
		RecentersTotal: registry.RegisterCounter(
			"joystick_recenters_total",
			"Joystick centers advanced after a stroke",
			nil,
		),
		IdleResetsTotal: registry.RegisterCounter(
			"joystick_idle_resets_total",
			"Times every joystick was re-homed after idling",
			nil,
		),
		SinkErrorsTotal: registry.RegisterCounter(
			"sink_errors_total",
			"Strokes a sink failed to deliver",
			nil,
		),
		ConfigReloads: registry.RegisterCounter(
			"config_reloads_total",
			"Configuration reloads applied",
			nil,
		),

		ActiveTouches: registry.RegisterGauge(
			"active_touches",
			"Touches currently tracked",
			nil,
		),
		OpenKeyboards: registry.RegisterGauge(
			"open_keyboards",
			"Keyboard instances currently open",
			nil,
		),
		UptimeSeconds: registry.RegisterGauge(
			"uptime_seconds",
			"Number of seconds the process has been running",
			nil,
		),
		LastStrokeTime: registry.RegisterGauge(
			"last_stroke_timestamp",
			"Unix timestamp of the last submitted stroke",
			nil,
		),

		StrokeKeys: registry.RegisterHistogram(
			"stroke_keys",
			"Number of steno keys per submitted stroke",
			nil,
			KeyCountBuckets,
		),
		GestureDuration: registry.RegisterHistogram(
			"gesture_duration_seconds",
			"Time from first touch to full release",
			nil,
			DurationBuckets,
		),
	}
}

// Registry returns the registry the metrics live in.
func (m *StenoMetrics) Registry() *Registry {
	return m.registry
}

// RecordStroke records a submitted stroke of n keys.
func (m *StenoMetrics) RecordStroke(n int, gesture time.Duration) {
	m.StrokesTotal.Inc()
	m.StrokeKeys.Observe(float64(n))
	m.GestureDuration.ObserveDuration(gesture)
	m.LastStrokeTime.Set(time.Now().Unix())
}

// RecordDiscard records a gesture that ended without keys.
func (m *StenoMetrics) RecordDiscard() {
	m.DiscardedTotal.Inc()
}

// RecordCancel records a gesture cancelled before release.
func (m *StenoMetrics) RecordCancel() {
	m.CancelledTotal.Inc()
}

// RecordTouch records a new contact and whether it hit a key.
func (m *StenoMetrics) RecordTouch(resolved bool) {
	m.TouchesTotal.Inc()
	if !resolved {
		m.UnresolvedTotal.Inc()
	}
}

// SetActiveTouches sets the tracked touch count.
func (m *StenoMetrics) SetActiveTouches(n int) {
	m.ActiveTouches.Set(int64(n))
}

// RecordRebuild records a key index rebuild.
func (m *StenoMetrics) RecordRebuild() {
	m.RebuildsTotal.Inc()
}

// RecordRecenter records n joystick centers advanced after a stroke.
func (m *StenoMetrics) RecordRecenter(n int) {
	m.RecentersTotal.Add(uint64(n))
}

// RecordIdleReset records an idle re-homing of all joysticks.
func (m *StenoMetrics) RecordIdleReset() {
	m.IdleResetsTotal.Inc()
}

// RecordSinkError records a failed stroke delivery.
func (m *StenoMetrics) RecordSinkError() {
	m.SinkErrorsTotal.Inc()
}

// RecordConfigReload records an applied configuration reload.
func (m *StenoMetrics) RecordConfigReload() {
	m.ConfigReloads.Inc()
}

// KeyboardOpened increments the open keyboard gauge.
func (m *StenoMetrics) KeyboardOpened() {
	m.OpenKeyboards.Inc()
}

// KeyboardClosed decrements the open keyboard gauge.
func (m *StenoMetrics) KeyboardClosed() {
	m.OpenKeyboards.Dec()
}

// UpdateUptime updates the uptime gauge.
func (m *StenoMetrics) UpdateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(startTime).Seconds()))
}

// Snapshot returns a snapshot of key metrics.
func (m *StenoMetrics) Snapshot() map[string]interface{} {
	m.UpdateUptime()
	return map[string]interface{}{
		"strokes_total":          m.StrokesTotal.Value(),
		"strokes_discarded":      m.DiscardedTotal.Value(),
		"strokes_cancelled":      m.CancelledTotal.Value(),
		"touches_total":          m.TouchesTotal.Value(),
		"touches_unresolved":     m.UnresolvedTotal.Value(),
		"layout_rebuilds":        m.RebuildsTotal.Value(),
		"joystick_recenters":     m.RecentersTotal.Value(),
		"sink_errors":            m.SinkErrorsTotal.Value(),
		"active_touches":         m.ActiveTouches.Value(),
		"open_keyboards":         m.OpenKeyboards.Value(),
		"uptime_seconds":         m.UptimeSeconds.Value(),
		"stroke_keys_avg":        m.StrokeKeys.Mean(),
		"gesture_duration_avg_s": m.GestureDuration.Mean(),
	}
}
