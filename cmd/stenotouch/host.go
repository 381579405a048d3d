package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"os"
	"sync"
	"time"

	"gioui.org/app"
	"gioui.org/f32"
	"gioui.org/font/gofont"
	"gioui.org/io/event"
	"gioui.org/io/pointer"
	giolayout "gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"stenotouch/internal/chord"
	"stenotouch/internal/config"
	"stenotouch/internal/health"
	"stenotouch/internal/instance"
	"stenotouch/internal/joystick"
	"stenotouch/internal/keyboard"
	"stenotouch/internal/layout"
	"stenotouch/internal/layouts"
	"stenotouch/internal/logging"
	"stenotouch/internal/metrics"
	"stenotouch/internal/output"
	"stenotouch/internal/settings"
	"stenotouch/internal/store"
	"stenotouch/internal/touch"
)

var palette = struct {
	Background color.NRGBA
	Key        color.NRGBA
	Pressed    color.NRGBA
	Spacer     color.NRGBA
	Ring       color.NRGBA
	Knob       color.NRGBA
	Text       color.NRGBA
}{
	Background: color.NRGBA{R: 0x12, G: 0x14, B: 0x18, A: 0xff},
	Key:        color.NRGBA{R: 0x2a, G: 0x2f, B: 0x38, A: 0xff},
	Pressed:    color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff},
	Spacer:     color.NRGBA{R: 0x1a, G: 0x1d, B: 0x22, A: 0xff},
	Ring:       color.NRGBA{R: 0x2a, G: 0x2f, B: 0x38, A: 0xc0},
	Knob:       color.NRGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff},
	Text:       color.NRGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff},
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default: platform config dir)")
	layoutName := fs.String("layout", "", "Layout to open (default: keyboard.layout)")
	fs.Parse(os.Args[2:])

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fatalf("Error loading config: %v\n", err)
	}

	go func() {
		w := new(app.Window)
		w.Option(app.Title("stenotouch"), app.Size(unit.Dp(1100), unit.Dp(520)))

		h, err := newHost(w, cfg, loader, *layoutName)
		if err != nil {
			fatalf("Error: %v\n", err)
		}
		err = h.loop()
		h.Close()
		if err != nil {
			fatalf("Error: %v\n", err)
		}
		os.Exit(0)
	}()
	app.Main()
}

// host runs one keyboard in a gio window. The window's event goroutine is
// the keyboard's event thread; other goroutines reach it through post.
type host struct {
	window   *app.Window
	log      *logging.Logger
	loader   *config.Loader
	override string

	lock     *instance.Lock
	registry *instance.Registry
	metrics  *metrics.StenoMetrics
	crash    *logging.CrashHandler
	store    *store.Store
	journal  *output.JournalSink
	sinks    output.Fanout
	settings *settings.Settings
	kb       *keyboard.Keyboard
	server   *http.Server

	translator *touch.Translator
	theme      *material.Theme

	mu    sync.Mutex
	queue []func()
}

func newHost(w *app.Window, cfg *config.Config, loader *config.Loader, override string) (*host, error) {
	h := &host{
		window:     w,
		loader:     loader,
		override:   override,
		translator: touch.NewTranslator(),
	}
	if err := h.open(cfg); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

func (h *host) open(cfg *config.Config) error {
	logCfg, err := logging.FromConfig(cfg.Logging)
	if err != nil {
		return err
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	logging.SetDefault(logger)
	h.log = logger

	h.lock, err = instance.Acquire(config.PlatformRuntimeDir())
	if err != nil {
		return err
	}

	h.metrics = metrics.NewStenoMetrics(metrics.Default())
	h.registry = instance.NewRegistry(h.metrics)
	h.crash = logging.NewCrashHandler(&logging.CrashHandlerConfig{
		Version:   version,
		Component: "host",
		Logger:    logger.Component("crash"),
	})

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if cfg.Journal.Enabled {
		h.store, err = store.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		h.journal = output.NewJournalSink(h.store, output.JournalOptions{
			Options:       output.Options{Logger: logger.Logger, Metrics: h.metrics},
			BufferSize:    cfg.Journal.BufferSize,
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval(),
		})
		h.sinks = append(h.sinks, h.journal)
	}
	if cfg.Output.DBus.Enabled {
		sink, err := output.DialDBus(cfg.Output.DBus, output.Options{Logger: logger.Logger, Metrics: h.metrics})
		if err != nil {
			// Strokes still reach the journal.
			logger.Warn("steno engine unavailable", "error", err)
		} else {
			h.sinks = append(h.sinks, sink)
		}
	}

	catalog, err := layouts.NewCatalog(logger.Component("layouts"))
	if err != nil {
		return err
	}
	if n, err := catalog.LoadDir(cfg.Keyboard.LayoutsDir); err != nil {
		logger.Warn("some user layouts were rejected", "dir", cfg.Keyboard.LayoutsDir, "error", err)
	} else if n > 0 {
		logger.Info("user layouts loaded", "dir", cfg.Keyboard.LayoutsDir, "count", n)
	}

	h.settings = settings.New(h.effective(cfg))
	h.kb, err = keyboard.New("main", catalog, h.settings, chord.Sink(h.sinks), keyboard.Options{
		Logger:  logger.Logger,
		Metrics: h.metrics,
		Clock:   joystick.PostClock{Post: h.post},
		Crash:   h.crash,
	})
	if err != nil {
		return err
	}
	h.registry.Register(h.kb)

	h.loader.OnChange(func(c *config.Config) {
		h.post(func() { h.reload(c) })
	})
	if err := h.loader.Watch(); err != nil {
		logger.Warn("config hot reload disabled", "error", err)
	} else {
		go h.reportConfigErrors()
	}

	if cfg.Metrics.Enabled {
		h.serveMetrics(cfg.Metrics.Listen)
	}

	h.theme = material.NewTheme()
	h.theme.Shaper = text.NewShaper(text.WithCollection(gofont.Collection()))
	h.theme.Palette.Fg = palette.Text

	logger.Info("keyboard ready", "layout", h.kb.Layout().Name, "config", h.loader.Path())
	return nil
}

// effective applies the command-line layout over cfg.
func (h *host) effective(cfg *config.Config) *config.Config {
	if h.override == "" {
		return cfg
	}
	c := cfg.Clone()
	c.Keyboard.Layout = h.override
	return c
}

func (h *host) reload(cfg *config.Config) {
	n := h.kb.ApplyConfig(h.effective(cfg))
	h.metrics.RecordConfigReload()
	h.log.Info("config reloaded", "changed", n)
}

func (h *host) reportConfigErrors() {
	for err := range h.loader.Errors() {
		h.log.Warn("config reload rejected", "error", err)
	}
}

func (h *host) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h.metrics.Registry().HTTPHandler())
	mux.Handle("/healthz", h.healthChecks().Handler())
	h.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.log.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	h.log.Info("serving metrics", "addr", addr)
}

func (h *host) healthChecks() *health.Checker {
	checker := health.NewChecker()
	checker.Register("keyboards", true, 0, health.CountCheck("keyboards", h.registry.Len))
	if h.store != nil {
		checker.Register("journal", true, 2*time.Second, health.PingCheck(h.store.DB().PingContext))
		checker.Register("journal_queue", false, 0, health.DropCheck(h.journal.Dropped))
	}
	return checker
}

// post queues fn for the event goroutine and wakes the window.
func (h *host) post(fn func()) {
	h.mu.Lock()
	h.queue = append(h.queue, fn)
	h.mu.Unlock()
	h.window.Invalidate()
}

func (h *host) drain() {
	h.mu.Lock()
	queue := h.queue
	h.queue = nil
	h.mu.Unlock()
	for _, fn := range queue {
		fn()
	}
}

func (h *host) loop() error {
	var ops op.Ops
	for {
		switch e := h.window.Event().(type) {
		case app.DestroyEvent:
			return e.Err
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)
			panicked := h.crash.Guard(map[string]any{"phase": "frame"}, func() {
				h.drain()
				h.frame(gtx)
			})
			if panicked {
				// Drop whatever gesture was in flight and keep running.
				h.kb.Cancel()
				ops.Reset()
			}
			e.Frame(gtx.Ops)
		}
	}
}

func (h *host) frame(gtx giolayout.Context) {
	paint.Fill(gtx.Ops, palette.Background)

	area := clip.Rect{Max: gtx.Constraints.Max}.Push(gtx.Ops)
	event.Op(gtx.Ops, h)
	area.Pop()

	for {
		ev, ok := gtx.Event(pointer.Filter{
			Target: h,
			Kinds:  pointer.Press | pointer.Drag | pointer.Release | pointer.Cancel,
		})
		if !ok {
			break
		}
		if pe, ok := ev.(pointer.Event); ok {
			h.kb.Dispatch(h.translator.Translate(pe))
		}
	}

	if h.kb.Modality() == layouts.Joysticks {
		h.paintJoysticks(gtx)
	} else {
		h.paintKeys(gtx)
	}
	h.paintStroke(gtx)
}

func (h *host) paintKeys(gtx giolayout.Context) {
	for _, r := range h.kb.Regions() {
		col := palette.Key
		switch {
		case r.Key.IsSpacer():
			col = palette.Spacer
		case h.kb.Matched(r.Key):
			col = palette.Pressed
		}
		t := op.Affine(r.Transform).Push(gtx.Ops)
		fillRect(gtx.Ops, r.Rect, col)
		if !r.Key.IsSpacer() {
			h.label(gtx, r.Rect, r.Key.Label)
		}
		t.Pop()
	}
}

func (h *host) paintJoysticks(gtx giolayout.Context) {
	radius := h.settings.JoystickParams().MaxRadius.Get()
	for _, j := range h.kb.Joysticks() {
		c := j.Center()
		fillCircle(gtx.Ops, c, radius, palette.Ring)
		fillCircle(gtx.Ops, c.Add(j.Displacement()), radius/3, palette.Knob)

		name := j.Name()
		if k := j.Selected(); k != nil {
			name = k.Label
		}
		box := layout.Rect{
			Min: f32.Pt(c.X-radius, c.Y+radius),
			Max: f32.Pt(c.X+radius, c.Y+radius+24),
		}
		h.label(gtx, box, name)
	}
}

func (h *host) paintStroke(gtx giolayout.Context) {
	s := h.kb.Stroke().Get()
	if s.IsEmpty() {
		return
	}
	off := op.Offset(image.Pt(gtx.Dp(12), gtx.Constraints.Max.Y-gtx.Dp(40))).Push(gtx.Ops)
	material.H6(h.theme, s.String()).Layout(gtx)
	off.Pop()
}

func (h *host) label(gtx giolayout.Context, r layout.Rect, s string) {
	off := op.Offset(image.Pt(int(r.Min.X), int(r.Min.Y))).Push(gtx.Ops)
	gtx.Constraints = giolayout.Exact(image.Pt(int(r.Max.X-r.Min.X), int(r.Max.Y-r.Min.Y)))
	giolayout.Center.Layout(gtx, material.Body1(h.theme, s).Layout)
	off.Pop()
}

func fillRect(ops *op.Ops, r layout.Rect, c color.NRGBA) {
	var p clip.Path
	p.Begin(ops)
	p.MoveTo(r.Min)
	p.LineTo(f32.Pt(r.Max.X, r.Min.Y))
	p.LineTo(r.Max)
	p.LineTo(f32.Pt(r.Min.X, r.Max.Y))
	p.Close()
	paint.FillShape(ops, c, clip.Outline{Path: p.End()}.Op())
}

func fillCircle(ops *op.Ops, center f32.Point, radius float32, c color.NRGBA) {
	r := image.Rect(
		int(center.X-radius), int(center.Y-radius),
		int(center.X+radius), int(center.Y+radius),
	)
	paint.FillShape(ops, c, clip.Ellipse(r).Op(ops))
}

// Close tears everything down in reverse order of open. It is safe to call
// on a partly opened host.
func (h *host) Close() {
	if h.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		h.server.Shutdown(ctx)
		cancel()
	}
	if h.loader != nil {
		h.loader.Close()
	}
	if h.registry != nil {
		if err := h.registry.CloseAll(); err != nil {
			h.log.Warn("closing keyboards", "error", err)
		}
	}
	if h.settings != nil {
		h.settings.Close()
	}
	if err := h.sinks.Close(); err != nil {
		h.log.Warn("closing outputs", "error", err)
	}
	if h.store != nil {
		h.store.Close()
	}
	if h.lock != nil {
		h.lock.Release()
	}
	if h.log != nil {
		h.log.Info("stenotouch stopped")
		h.log.Close()
	}
}
