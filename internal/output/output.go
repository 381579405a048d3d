// Package output delivers completed strokes to their consumers: the steno
// engine over D-Bus and the SQLite journal.
//
// Every sink is called on the input thread. None of them block it; I/O
// happens on the bus connection's own goroutines or on the journal writer.
package output

import (
	"errors"
	"io"
	"log/slog"

	"stenotouch/internal/chord"
	"stenotouch/internal/metrics"
	"stenotouch/internal/steno"
)

// Options is shared by the sinks. The zero value is usable.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.StenoMetrics
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// LayoutInfo identifies the layout strokes are typed on.
type LayoutInfo struct {
	Name        string
	Fingerprint string
	Modality    string
	Source      string
}

// LayoutAware sinks are told when the active layout changes.
type LayoutAware interface {
	SetLayout(LayoutInfo)
}

// Fanout submits each stroke to every sink in order.
type Fanout []chord.Sink

// SubmitStroke implements chord.Sink.
func (f Fanout) SubmitStroke(s steno.Stroke) {
	for _, sink := range f {
		sink.SubmitStroke(s)
	}
}

// SetLayout forwards to every member that is LayoutAware.
func (f Fanout) SetLayout(info LayoutInfo) {
	for _, sink := range f {
		if la, ok := sink.(LayoutAware); ok {
			la.SetLayout(info)
		}
	}
}

// Close closes every member that is an io.Closer and joins their errors.
func (f Fanout) Close() error {
	var errs []error
	for _, sink := range f {
		if c, ok := sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
