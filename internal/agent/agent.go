// Package agent implements the per-document side of scroll and navigation
// mirroring.
//
// An Agent is bound to exactly one frame document. It turns raw document
// signals (scroll, history changes, anchor activation) into protocol
// reports for the host, applies scroll commands the host sends back, and
// answers liveness probes. Everything here runs on the loop; the Document it
// drives is expected to be cheap to read and to apply scrolls without
// blocking.
package agent

import (
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dualview/internal/bus"
	"github.com/xkilldash9x/dualview/internal/frame"
	"github.com/xkilldash9x/dualview/internal/loop"
	"github.com/xkilldash9x/dualview/internal/protocol"
)

const (
	DefaultScrollDebounce = 50 * time.Millisecond
	DefaultPollInterval   = 1500 * time.Millisecond
)

// Metrics is a snapshot of a document's scroll state.
type Metrics struct {
	protocol.Extent
	ScrollTop  float64 `json:"scrollTop"`
	ScrollLeft float64 `json:"scrollLeft"`
}

// Document is the agent's view of the frame it lives in.
type Document interface {
	// Metrics returns the latest known scroll geometry.
	Metrics() Metrics
	// ScrollTo moves the viewport immediately, without smooth scrolling.
	ScrollTo(left, top float64)
	// Location is the document's current absolute URL.
	Location() string
}

// Channel is the frame side of the message bus.
type Channel interface {
	ListenFrame(dst frame.Handle, h bus.Handler) (unsubscribe func())
	SendToHost(src frame.Handle, m protocol.Message) error
}

// Options tunes agent timing. Zero values select the defaults.
type Options struct {
	// ScrollDebounce is the quiet window after the last scroll signal
	// before a report goes out.
	ScrollDebounce time.Duration
	// PollInterval is the fallback navigation check period.
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.ScrollDebounce <= 0 {
		o.ScrollDebounce = DefaultScrollDebounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// Agent bridges one document to the message channel.
type Agent struct {
	handle frame.Handle
	doc    Document
	ch     Channel
	loop   loop.Loop
	logger *zap.Logger
	opts   Options

	installed bool
	unlisten  func()
	poll      loop.Timer
	debounce  loop.Timer
	// suppress is set while a host-requested scroll is being applied so the
	// resulting native scroll signal is not reported back.
	suppress bool
	lastURL  string
}

// New creates an Agent for the document behind handle. It does nothing
// until Install is called.
func New(handle frame.Handle, doc Document, ch Channel, lp loop.Loop, logger *zap.Logger, opts Options) *Agent {
	return &Agent{
		handle: handle,
		doc:    doc,
		ch:     ch,
		loop:   lp,
		logger: logger.Named("agent").With(zap.String("frame", string(handle))),
		opts:   opts.withDefaults(),
	}
}

// Install starts listening for host messages and begins the navigation
// poll. Repeated calls are no-ops, so re-injection into the same document
// is harmless.
func (a *Agent) Install() {
	if a.installed {
		a.logger.Debug("Agent already installed, ignoring re-injection.")
		return
	}
	a.installed = true
	a.lastURL = a.doc.Location()
	a.unlisten = a.ch.ListenFrame(a.handle, a.handleMessage)
	a.schedulePoll()
	a.logger.Debug("Agent installed.", zap.String("url", a.lastURL))
}

// Uninstall detaches the agent and cancels its timers.
func (a *Agent) Uninstall() {
	if !a.installed {
		return
	}
	a.installed = false
	if a.unlisten != nil {
		a.unlisten()
		a.unlisten = nil
	}
	stopTimer(&a.poll)
	stopTimer(&a.debounce)
	a.suppress = false
	a.logger.Debug("Agent uninstalled.")
}

// Installed reports whether Install has run without a matching Uninstall.
func (a *Agent) Installed() bool { return a.installed }

// OnScroll is the document's native scroll signal. Reports are debounced:
// only the most recent position is sent, once the document has been quiet
// for the debounce window.
func (a *Agent) OnScroll() {
	if !a.installed || a.suppress {
		return
	}
	stopTimer(&a.debounce)
	a.debounce = a.loop.AfterFunc(a.opts.ScrollDebounce, a.flushScroll)
}

func (a *Agent) flushScroll() {
	a.debounce = nil
	if !a.installed || a.suppress {
		return
	}
	m := a.doc.Metrics()
	report := protocol.ScrollReport(
		protocol.Fraction(m.ScrollTop, m.ScrollHeight, m.ClientHeight),
		protocol.Fraction(m.ScrollLeft, m.ScrollWidth, m.ClientWidth),
		m.ScrollTop,
		m.ScrollLeft,
	)
	if err := a.ch.SendToHost(a.handle, report); err != nil {
		a.logger.Debug("Failed to send scroll report.", zap.Error(err))
	}
}

// applyScroll moves the document to the position carried by cmd. An axis
// the command leaves out keeps its current offset.
func (a *Agent) applyScroll(cmd protocol.Message) {
	m := a.doc.Metrics()
	pos := cmd.Position(m.Extent)
	left, top := m.ScrollLeft, m.ScrollTop
	if pos.HasLeft {
		left = protocol.Offset(pos.Left, m.ScrollWidth, m.ClientWidth)
	}
	if pos.HasTop {
		top = protocol.Offset(pos.Top, m.ScrollHeight, m.ClientHeight)
	}

	a.suppress = true
	stopTimer(&a.debounce)
	a.loop.RequestFrame(func() { a.suppress = false })

	a.doc.ScrollTo(left, top)
}

func (a *Agent) handleMessage(env bus.Envelope) {
	if !a.installed {
		return
	}
	msg, err := protocol.Decode(env.Data)
	if err != nil {
		return
	}
	switch msg.Type {
	case protocol.TypeScrollSet:
		a.applyScroll(msg)
	case protocol.TypePing:
		if err := a.ch.SendToHost(a.handle, protocol.Pong(msg.Token, a.doc.Location())); err != nil {
			a.logger.Debug("Failed to answer liveness probe.", zap.Error(err))
		}
	}
}

func stopTimer(t *loop.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
