package output

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"stenotouch/internal/config"
	"stenotouch/internal/metrics"
	"stenotouch/internal/steno"
)

// caller is the part of dbus.BusObject the sink uses.
type caller interface {
	Go(method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call
}

// DBusSink sends each stroke to the steno engine as a method call carrying
// the stroke's key names. Calls are fire-and-forget.
type DBusSink struct {
	conn    *dbus.Conn
	obj     caller
	method  string
	log     *slog.Logger
	metrics *metrics.StenoMetrics
}

// DialDBus connects to the configured bus and addresses the engine object.
func DialDBus(cfg config.DBusConfig, opts Options) (*DBusSink, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	switch cfg.Bus {
	case "system":
		conn, err = dbus.ConnectSystemBus()
	default:
		conn, err = dbus.ConnectSessionBus()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s bus: %w", busName(cfg.Bus), err)
	}

	if !dbus.ObjectPath(cfg.ObjectPath).IsValid() {
		conn.Close()
		return nil, fmt.Errorf("invalid object path %q", cfg.ObjectPath)
	}

	s := NewDBusSink(conn.Object(cfg.Destination, dbus.ObjectPath(cfg.ObjectPath)),
		cfg.Interface+"."+cfg.Method, opts)
	s.conn = conn
	s.log.Info("stroke output connected",
		"bus", busName(cfg.Bus),
		"destination", cfg.Destination,
		"path", cfg.ObjectPath,
		"method", s.method)
	return s, nil
}

// NewDBusSink sends strokes to obj. method is the fully qualified member
// name, e.g. "org.stenotouch.Engine.SendStroke".
func NewDBusSink(obj caller, method string, opts Options) *DBusSink {
	return &DBusSink{
		obj:     obj,
		method:  method,
		log:     opts.logger().With("component", "dbus"),
		metrics: opts.Metrics,
	}
}

func busName(bus string) string {
	if bus == "" {
		return "session"
	}
	return bus
}

// SubmitStroke implements chord.Sink.
func (s *DBusSink) SubmitStroke(st steno.Stroke) {
	call := s.obj.Go(s.method, dbus.FlagNoReplyExpected, nil, st.KeyNames())
	if call != nil && call.Err != nil {
		s.log.Warn("failed to send stroke", "steno", st.String(), "error", call.Err)
		if s.metrics != nil {
			s.metrics.RecordSinkError()
		}
	}
}

// Close closes the bus connection if the sink opened it.
func (s *DBusSink) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close bus connection: %w", err)
	}
	return nil
}
