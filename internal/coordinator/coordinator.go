// Package coordinator routes scroll and navigation reports between the two
// embedded frames.
//
// A scroll report from one frame becomes a scroll command for the other.
// Applying that command makes the other frame scroll, and its agent would
// normally report that scroll right back; the coordinator drops reports for
// a few animation frames after each command it sends so a single user
// scroll produces exactly one command. Navigation in either frame is
// mirrored into the other and published to the shared location store.
package coordinator

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/dualview/internal/bus"
	"github.com/xkilldash9x/dualview/internal/frame"
	"github.com/xkilldash9x/dualview/internal/loop"
	"github.com/xkilldash9x/dualview/internal/protocol"
)

// DefaultGuardFrames is how many frame ticks the echo guard stays up.
const DefaultGuardFrames = 2

// Channel is the host side of the message bus.
type Channel interface {
	ListenHost(h bus.Handler) (unsubscribe func())
	SendToFrame(dst frame.Handle, m protocol.Message) error
}

// URLStore receives every navigation routed through the coordinator.
type URLStore interface {
	Set(url string) bool
}

// Options tunes a Coordinator.
type Options struct {
	GuardFrames int
}

// Stats counts routing decisions.
type Stats struct {
	RoutedScrolls       int
	SuppressedEchoes    int
	MirroredNavigations int
	Dropped             int
}

// Coordinator mirrors one frame onto the other. All methods must be called
// on the loop.
type Coordinator struct {
	desktop frame.Target
	mobile  frame.Target
	ch      Channel
	loop    loop.Loop
	store   URLStore
	logger  *zap.Logger

	guardFrames int
	guard       bool
	// epoch invalidates pending guard releases from earlier commands and
	// from before a disable.
	epoch uint64

	unlisten func()
	closed   bool
	stats    Stats
}

// New creates a disabled Coordinator for the given pair of frames. store may
// be nil.
func New(desktop, mobile frame.Target, ch Channel, lp loop.Loop, store URLStore, logger *zap.Logger, opts Options) *Coordinator {
	if opts.GuardFrames <= 0 {
		opts.GuardFrames = DefaultGuardFrames
	}
	return &Coordinator{
		desktop:     desktop,
		mobile:      mobile,
		ch:          ch,
		loop:        lp,
		store:       store,
		logger:      logger.Named("coordinator"),
		guardFrames: opts.GuardFrames,
	}
}

// SetEnabled attaches or detaches the routing listener. Frames are not
// reloaded either way. Commands already sent are not undone.
func (c *Coordinator) SetEnabled(enabled bool) {
	if c.closed || enabled == c.Enabled() {
		return
	}
	if enabled {
		c.unlisten = c.ch.ListenHost(c.handle)
		c.logger.Info("Frame mirroring enabled.")
		return
	}
	c.detach()
	c.logger.Info("Frame mirroring disabled.")
}

// Enabled reports whether the routing listener is attached.
func (c *Coordinator) Enabled() bool { return c.unlisten != nil }

// Close detaches the coordinator permanently.
func (c *Coordinator) Close() {
	if c.closed {
		return
	}
	c.detach()
	c.closed = true
}

// Stats returns a copy of the routing counters.
func (c *Coordinator) Stats() Stats { return c.stats }

// Guarded reports whether echo suppression is currently active.
func (c *Coordinator) Guarded() bool { return c.guard }

func (c *Coordinator) detach() {
	if c.unlisten != nil {
		c.unlisten()
		c.unlisten = nil
	}
	c.releaseGuard()
}

func (c *Coordinator) handle(env bus.Envelope) {
	src, dst := c.resolve(env.Source)
	if src == nil {
		c.stats.Dropped++
		c.logger.Debug("Dropping message from unknown source.", zap.String("source", string(env.Source)))
		return
	}
	msg, err := protocol.Decode(env.Data)
	if err != nil {
		c.stats.Dropped++
		c.logger.Debug("Dropping malformed message.", zap.String("source", string(env.Source)), zap.Error(err))
		return
	}

	switch msg.Type {
	case protocol.TypeScrollReport:
		c.routeScroll(dst, msg)
	case protocol.TypeNavIntent, protocol.TypeNavigate:
		c.routeNavigation(dst, msg.URL)
	case protocol.TypePong:
		// Liveness acks belong to the prober.
	default:
		c.stats.Dropped++
	}
}

// resolve maps a source handle to its frame and the opposite one.
func (c *Coordinator) resolve(h frame.Handle) (src, dst frame.Target) {
	if h == frame.NoHandle {
		return nil, nil
	}
	switch h {
	case c.desktop.Handle():
		return c.desktop, c.mobile
	case c.mobile.Handle():
		return c.mobile, c.desktop
	}
	return nil, nil
}

func (c *Coordinator) routeScroll(dst frame.Target, report protocol.Message) {
	if c.guard {
		c.stats.SuppressedEchoes++
		return
	}
	// The release is scheduled before sending so a failed send cannot leave
	// the guard up.
	c.engageGuard()
	if err := c.ch.SendToFrame(dst.Handle(), report.AsCommand()); err != nil {
		c.logger.Debug("Failed to send scroll command.", zap.String("target", string(dst.Handle())), zap.Error(err))
		return
	}
	c.stats.RoutedScrolls++
}

func (c *Coordinator) routeNavigation(dst frame.Target, url string) {
	if dst.URL() != url {
		c.logger.Debug("Mirroring navigation.", zap.String("target", string(dst.Handle())), zap.String("url", url))
		dst.SetURL(url)
		c.stats.MirroredNavigations++
	}
	if c.store != nil {
		c.store.Set(url)
	}
}

func (c *Coordinator) engageGuard() {
	c.guard = true
	c.epoch++
	epoch := c.epoch
	remaining := c.guardFrames

	var tick func()
	tick = func() {
		if c.epoch != epoch {
			return
		}
		remaining--
		if remaining > 0 {
			c.loop.RequestFrame(tick)
			return
		}
		c.guard = false
	}
	c.loop.RequestFrame(tick)
}

func (c *Coordinator) releaseGuard() {
	c.epoch++
	c.guard = false
}
