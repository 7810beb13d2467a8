// Package host runs the side-by-side viewer: a local page embedding a
// desktop and a mobile frame, shown in Chrome, with the sync coordinator,
// one liveness prober per frame, and an agent in every scriptable document.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/dualview/internal/agent"
	"github.com/xkilldash9x/dualview/internal/bus"
	"github.com/xkilldash9x/dualview/internal/config"
	"github.com/xkilldash9x/dualview/internal/coordinator"
	"github.com/xkilldash9x/dualview/internal/devices"
	"github.com/xkilldash9x/dualview/internal/frame"
	"github.com/xkilldash9x/dualview/internal/location"
	"github.com/xkilldash9x/dualview/internal/loop"
	"github.com/xkilldash9x/dualview/internal/prober"
	"github.com/xkilldash9x/dualview/internal/status"
)

// ErrBrowserClosed is returned by Run when the browser window goes away.
var ErrBrowserClosed = errors.New("browser closed")

// FrameState is a point-in-time view of one frame.
type FrameState struct {
	Name   string
	URL    string
	Status frame.Status
}

// State is a point-in-time view of the whole viewer.
type State struct {
	// Address is the shared URL both frames follow.
	Address   string
	View      string
	Frames    []FrameState
	Stats     coordinator.Stats
	Mirroring bool
}

// Host owns every sync component. Callers talk to it from any goroutine;
// all state changes are posted to the loop.
type Host struct {
	cfg    config.Interface
	logger *zap.Logger
	device devices.Device
	layout Layout

	loop    loop.Loop
	runner  *loop.EventLoop
	bus     *bus.Bus
	store   *location.Store
	eval    *evaluator
	session *session
	coord   *coordinator.Coordinator
	desktop *slot
	mobile  *slot
	// visible holds the slots the layout puts on the page.
	visible []*slot

	unsubscribe func()

	mu sync.RWMutex
	// evalExec is set once the browser is up.
	evalExec EvalFunc
}

// New assembles a Host. presenter receives every frame status transition;
// it may be nil.
func New(cfg config.Interface, logger *zap.Logger, presenter status.Presenter) *Host {
	logger = logger.Named("host")
	runner := loop.New(logger, cfg.Sync().FrameInterval)
	h := newHost(cfg, logger, presenter, runner)
	h.runner = runner
	return h
}

func newHost(cfg config.Interface, logger *zap.Logger, presenter status.Presenter, lp loop.Loop) *Host {
	h := &Host{
		cfg:    cfg,
		logger: logger,
		device: devices.Find(cfg.Host().Device),
		layout: LayoutFromConfig(cfg.Host()),
		loop:   lp,
		store:  location.NewStore(""),
	}
	h.bus = bus.New(logger, h.loop)
	h.eval = newEvaluator(logger, h.exec, cfg.Host().EvalQueueSize, cfg.Host().EvalTimeout)

	h.desktop = h.newSlot(FrameDesktop, presenter)
	h.mobile = h.newSlot(FrameMobile, presenter)
	if h.layout.ShowsDesktop() {
		h.visible = append(h.visible, h.desktop)
	}
	if h.layout.ShowsMobile() {
		h.visible = append(h.visible, h.mobile)
	}
	h.session = newSession(logger, h.eval.EnqueueNav, h.desktop, h.mobile)

	h.coord = coordinator.New(h.desktop, h.mobile, h.bus, h.loop, h.store, logger,
		coordinator.Options{GuardFrames: cfg.Sync().GuardFrames})
	h.unsubscribe = h.store.Subscribe(func(url string) {
		h.logger.Debug("Address changed.", zap.String("url", url))
	})

	mirror := cfg.Sync().Mirror && h.layout.Mirrorable()
	h.loop.Post(func() { h.coord.SetEnabled(mirror) })
	return h
}

func (h *Host) newSlot(name string, presenter status.Presenter) *slot {
	handle := frame.Handle(name)
	p := prober.New(name, handle, h.bus, h.loop, presenter, h.logger,
		prober.Options{Timeout: h.cfg.Prober().Timeout})
	p.Attach()
	return newSlot(name, h.logger, slotDeps{
		bus:  h.bus,
		loop: h.loop,
		agentOpts: agent.Options{
			ScrollDebounce: h.cfg.Agent().ScrollDebounce,
			PollInterval:   h.cfg.Agent().PollInterval,
		},
		enqueue: h.eval.Enqueue,
		setSrc:  func(name, url string) { h.session.setSrc(name, url) },
		prober:  p,
	})
}

// Device is the preset the mobile frame is laid out for.
func (h *Host) Device() devices.Device { return h.device }

// Layout is how the host page arranges its frames.
func (h *Host) Layout() Layout { return h.layout }

// Load normalizes raw and loads it into every shown frame, reloading them
// if they already show it. It returns the normalized URL, or "" when raw is
// blank.
func (h *Host) Load(raw string) string {
	url := location.Normalize(raw)
	if url == "" {
		return ""
	}
	h.loop.Post(func() {
		h.store.Set(url)
		for _, sl := range h.visible {
			sl.SetURL(url)
		}
	})
	return url
}

// OnAddressChange registers l for every change of the shared address,
// whether from Load or from a mirrored navigation. l runs on the loop and
// must not block. The returned function removes it.
func (h *Host) OnAddressChange(l location.Listener) (unsubscribe func()) {
	return h.store.Subscribe(l)
}

// SetMirror turns mirroring on or off without reloading either frame. It
// reports whether mirroring is on afterwards, which it never is unless both
// frames are shown.
func (h *Host) SetMirror(enabled bool) bool {
	on := enabled && h.layout.Mirrorable()
	h.loop.Post(func() { h.coord.SetEnabled(on) })
	return on
}

// Snapshot reports the shared address, the shown frames and the
// coordinator counters.
func (h *Host) Snapshot(ctx context.Context) (State, error) {
	done := make(chan State, 1)
	h.loop.Post(func() { done <- h.state() })
	select {
	case st := <-done:
		return st, nil
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

func (h *Host) state() State {
	return State{
		Address:   h.store.Current(),
		View:      h.layout.View,
		Frames:    h.frames(),
		Stats:     h.coord.Stats(),
		Mirroring: h.coord.Enabled(),
	}
}

func (h *Host) frames() []FrameState {
	out := make([]FrameState, 0, len(h.visible))
	for _, sl := range h.visible {
		out = append(out, FrameState{Name: sl.name, URL: sl.URL(), Status: sl.Status()})
	}
	return out
}

// Run serves the host page, opens it in Chrome, and processes events until
// ctx is cancelled or the browser goes away.
func (h *Host) Run(ctx context.Context) error {
	shim, err := BuildShim(BindingName)
	if err != nil {
		return err
	}
	page, err := RenderPage(NewPageData(h.device, h.layout))
	if err != nil {
		return err
	}
	srv, err := newPageServer(h.logger, h.cfg.Host().ListenAddr, page)
	if err != nil {
		return err
	}

	h.runner.Start()
	defer h.shutdown()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx) })
	g.Go(func() error { return h.eval.Run(gctx) })
	g.Go(func() error {
		b, err := startBrowser(gctx, h.logger, h.cfg.Browser(), func(ev interface{}) {
			h.loop.Post(func() { h.session.dispatch(ev) })
		})
		if err != nil {
			return err
		}
		defer b.Close()

		h.setExec(b.Evaluate)
		defer h.setExec(nil)
		if err := b.Open(shim, srv.URL()); err != nil {
			return err
		}
		h.logger.Info("Viewer ready.", zap.String("device", h.device.Label),
			zap.String("view", h.layout.View), zap.String("page", srv.URL()))

		select {
		case <-gctx.Done():
			return nil
		case <-b.Detached():
			if gctx.Err() != nil {
				return nil
			}
			return ErrBrowserClosed
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("viewer stopped: %w", err)
	}
	return nil
}

func (h *Host) setExec(fn EvalFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evalExec = fn
}

// exec is the evaluator's EvalFunc.
func (h *Host) exec(ctx context.Context, contextID runtime.ExecutionContextID, expr string) error {
	h.mu.RLock()
	fn := h.evalExec
	h.mu.RUnlock()
	if fn == nil {
		return fmt.Errorf("browser is not running")
	}
	return fn(ctx, contextID, expr)
}

func (h *Host) shutdown() {
	done := make(chan struct{})
	h.loop.Post(func() {
		h.coord.Close()
		h.desktop.close()
		h.mobile.close()
		close(done)
	})
	<-done
	h.unsubscribe()
	h.bus.Close()
	h.runner.Close()
}
