// Package keyboard ties the core together for a host. A Keyboard owns the
// accumulator, the key index and, for joystick layouts, the compensator.
// It routes touch batches to whichever of them the active layout uses and
// rebuilds everything when the layout changes.
package keyboard

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"stenotouch/internal/chord"
	"stenotouch/internal/config"
	"stenotouch/internal/joystick"
	"stenotouch/internal/layout"
	"stenotouch/internal/layouts"
	"stenotouch/internal/logging"
	"stenotouch/internal/metrics"
	"stenotouch/internal/output"
	"stenotouch/internal/reactive"
	"stenotouch/internal/settings"
	"stenotouch/internal/steno"
	"stenotouch/internal/touch"
)

// ErrClosed is returned by operations on a closed keyboard.
var ErrClosed = errors.New("keyboard: closed")

// Options configures a Keyboard. The zero value is usable.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.StenoMetrics
	// Clock delivers the joystick idle reset on the event thread. Nil
	// disables the idle reset.
	Clock joystick.Clock
	// Crash, when set, is told the active layout so crash reports name it.
	Crash *logging.CrashHandler
}

// Keyboard is one open on-screen keyboard. Like the core it is
// single-threaded: every method runs on the host's event thread.
type Keyboard struct {
	name     string
	catalog  *layouts.Catalog
	settings *settings.Settings
	sink     chord.Sink
	log      *slog.Logger
	metrics  *metrics.StenoMetrics
	clock    joystick.Clock
	crash    *logging.CrashHandler

	scope *reactive.Scope
	// built holds the derived values of the active layout.
	built  *reactive.Scope
	acc    *chord.Accumulator
	index  *layout.Index
	comp   *joystick.Compensator
	active *layouts.Layout

	changed reactive.Signal[struct{}]
	closed  bool
}

// New opens a keyboard on the layout named by set.Layout. Later changes to
// that cell switch layouts.
func New(name string, catalog *layouts.Catalog, set *settings.Settings, sink chord.Sink, opts Options) (*Keyboard, error) {
	k := &Keyboard{
		name:     name,
		catalog:  catalog,
		settings: set,
		sink:     sink,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		clock:    opts.Clock,
		crash:    opts.Crash,
		scope:    reactive.NewScope(),
	}
	if k.log == nil {
		k.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	k.log = k.log.With("keyboard", name)

	index, err := layout.NewIndex(k.scope, nil)
	if err != nil {
		k.scope.Close()
		return nil, err
	}
	k.index = index
	k.acc = chord.New(index, sink, chord.Options{Logger: k.log, Metrics: k.metrics})

	index.Changed().Watch(k.scope, k.notify)
	k.acc.Stroke().Watch(k.scope, k.notify)

	if err := k.SwitchLayout(set.Layout.Get()); err != nil {
		k.scope.Close()
		return nil, err
	}
	set.Layout.Subscribe(k.scope, func(layoutName string) {
		if layoutName == k.active.Name {
			return
		}
		if err := k.SwitchLayout(layoutName); err != nil {
			k.log.Error("layout switch failed", "layout", layoutName, "error", err)
			// Point the cell back at the active layout so the same name can
			// be applied again once it is fixed.
			set.Layout.Set(k.active.Name)
		}
	})
	return k, nil
}

func (k *Keyboard) notify() {
	k.changed.Emit(struct{}{})
}

// Name returns the keyboard name.
func (k *Keyboard) Name() string { return k.name }

// Layout returns the active layout.
func (k *Keyboard) Layout() *layouts.Layout { return k.active }

// Modality returns the active layout's input modality.
func (k *Keyboard) Modality() layouts.Modality { return k.active.Modality }

// SwitchLayout cancels the gesture in progress and rebuilds on the named
// layout. On error the previous layout stays active.
func (k *Keyboard) SwitchLayout(name string) error {
	if k.closed {
		return ErrClosed
	}
	l, err := k.catalog.Get(name)
	if err != nil {
		return err
	}

	scope := k.scope.Child()
	built, err := l.Build(scope, k.settings)
	if err != nil {
		scope.Close()
		return err
	}

	var comp *joystick.Compensator
	if l.Modality == layouts.Joysticks {
		comp, err = joystick.New(scope, built.Joysticks, k.acc, k.settings.JoystickParams(), joystick.Options{
			Logger:  k.log,
			Metrics: k.metrics,
			Clock:   k.clock,
		})
		if err != nil {
			scope.Close()
			return fmt.Errorf("%w: %s: %w", layouts.ErrInvalidLayout, name, err)
		}
	}

	prev := k.index.Root()
	k.Cancel()
	if err := k.index.Rebuild(built.Root); err != nil {
		if comp != nil {
			comp.Close()
		}
		scope.Close()
		// The previous tree indexed cleanly before.
		_ = k.index.Rebuild(prev)
		return fmt.Errorf("%w: %s: %w", layouts.ErrInvalidLayout, name, err)
	}
	if k.comp != nil {
		k.comp.Close()
	}
	if k.built != nil {
		k.built.Close()
	}
	k.built = scope
	k.comp = comp
	k.active = l
	if comp != nil {
		comp.Changed().Watch(scope, k.notify)
	}

	if k.metrics != nil {
		k.metrics.RecordRebuild()
	}
	if k.crash != nil {
		k.crash.SetLayout(l.Name)
	}
	if la, ok := k.sink.(output.LayoutAware); ok {
		la.SetLayout(output.LayoutInfo{
			Name:        l.Name,
			Fingerprint: l.Fingerprint,
			Modality:    string(l.Modality),
			Source:      l.Source,
		})
	}
	k.log.Info("layout active",
		"layout", l.Name,
		"modality", string(l.Modality),
		"source", l.Source,
		"keys", len(k.index.Regions()),
		"joysticks", len(built.Joysticks))
	k.notify()
	return nil
}

// Dispatch processes one batch of host touch samples.
func (k *Keyboard) Dispatch(b touch.Batch) {
	if k.closed || len(b) == 0 {
		return
	}
	if k.comp != nil {
		k.comp.HandleBatch(b)
		return
	}
	k.acc.HandleBatch(b)
}

// Cancel drops the gesture in progress without emitting a stroke.
func (k *Keyboard) Cancel() {
	if k.comp != nil {
		k.comp.Cancel()
		return
	}
	k.acc.Cancel()
}

// ApplyConfig writes cfg into the settings. Geometry changes move the key
// regions in place; a different layout name switches layouts.
func (k *Keyboard) ApplyConfig(cfg *config.Config) int {
	n := k.settings.Apply(cfg)
	if n > 0 {
		k.log.Debug("settings applied", "changed", n)
	}
	return n
}

// Regions returns the key regions of a keys layout in front-to-back order.
func (k *Keyboard) Regions() []layout.Region {
	return k.index.Regions()
}

// Bounds returns the device-space extent of the key regions.
func (k *Keyboard) Bounds() layout.Rect {
	return k.index.Bounds()
}

// Joysticks returns the controls of a joystick layout, or nil.
func (k *Keyboard) Joysticks() []*joystick.Joystick {
	if k.comp == nil {
		return nil
	}
	return k.comp.Joysticks()
}

// Stroke is the stroke of the gesture in progress.
func (k *Keyboard) Stroke() reactive.Value[steno.Stroke] {
	return k.acc.Stroke()
}

// Emitted fires after every submitted stroke.
func (k *Keyboard) Emitted() *reactive.Signal[steno.Stroke] {
	return k.acc.Emitted()
}

// Matched reports whether key has been touched during the current gesture.
func (k *Keyboard) Matched(key *layout.Key) bool {
	return k.acc.Matched(key)
}

// Changed fires whenever anything a host would draw has changed.
func (k *Keyboard) Changed() *reactive.Signal[struct{}] {
	return &k.changed
}

// Close cancels the gesture, stops the idle timer and releases every
// subscription. The sink is not closed.
func (k *Keyboard) Close() error {
	if k.closed {
		return nil
	}
	k.Cancel()
	if k.comp != nil {
		k.comp.Close()
	}
	k.closed = true
	k.scope.Close()
	k.log.Debug("keyboard closed")
	return nil
}
