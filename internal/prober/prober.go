// Package prober decides, per frame and per load attempt, whether the
// embedded document is live and scriptable or refused to be embedded.
//
// Frames that block embedding still fire a load event, but the agent never
// runs in them. After each load the prober sends a PING carrying a fresh
// token and waits for the matching PONG, or any other sign of life from the
// frame, before a timeout. Silence until the timeout means blocked.
package prober

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dualview/internal/bus"
	"github.com/xkilldash9x/dualview/internal/frame"
	"github.com/xkilldash9x/dualview/internal/loop"
	"github.com/xkilldash9x/dualview/internal/protocol"
	"github.com/xkilldash9x/dualview/internal/status"
)

const DefaultTimeout = 5 * time.Second

// Channel is the host side of the message bus.
type Channel interface {
	ListenHost(h bus.Handler) (unsubscribe func())
	SendToFrame(dst frame.Handle, m protocol.Message) error
}

// Options tunes a Prober. Zero values select the defaults.
type Options struct {
	Timeout time.Duration
	// NewToken mints probe tokens. Defaults to random UUIDs.
	NewToken func() string
}

// Prober tracks the status of a single frame.
type Prober struct {
	name    string
	handle  frame.Handle
	ch      Channel
	loop    loop.Loop
	sink    status.Presenter
	logger  *zap.Logger
	timeout time.Duration
	mint    func() string

	url      string
	status   frame.Status
	token    string
	timer    loop.Timer
	unlisten func()
}

// New creates a Prober for the frame behind handle. name is the label
// passed to the presenter. sink may be nil.
func New(name string, handle frame.Handle, ch Channel, lp loop.Loop, sink status.Presenter, logger *zap.Logger, opts Options) *Prober {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.NewToken == nil {
		opts.NewToken = func() string { return uuid.New().String() }
	}
	if sink == nil {
		sink = status.Discard
	}
	return &Prober{
		name:    name,
		handle:  handle,
		ch:      ch,
		loop:    lp,
		sink:    sink,
		logger:  logger.Named("prober").With(zap.String("frame", name)),
		timeout: opts.Timeout,
		mint:    opts.NewToken,
		status:  frame.StatusIdle,
	}
}

// Attach starts observing host-bound messages. Calling it twice is a no-op.
func (p *Prober) Attach() {
	if p.unlisten != nil {
		return
	}
	p.unlisten = p.ch.ListenHost(p.Observe)
}

// Close detaches from the bus and cancels a pending timeout. The last
// status is retained.
func (p *Prober) Close() {
	if p.unlisten != nil {
		p.unlisten()
		p.unlisten = nil
	}
	p.cancel()
}

// Status is the current classification of the frame.
func (p *Prober) Status() frame.Status { return p.status }

// URL is the target URL the current status refers to.
func (p *Prober) URL() string { return p.url }

// SetURL starts a new attempt for url. Any in-flight probe is invalidated,
// even if url equals the previous target.
func (p *Prober) SetURL(url string) {
	p.cancel()
	p.url = url
	if url == "" {
		p.transition(frame.StatusIdle)
		return
	}
	p.transition(frame.StatusLoading)
}

// OnLoad is the frame's native load signal. It sends a fresh probe unless
// the current attempt is already resolved.
func (p *Prober) OnLoad() {
	if p.url == "" || p.status.Terminal() {
		return
	}
	p.cancel()
	token := p.mint()
	p.token = token
	p.transition(frame.StatusChecking)

	p.timer = p.loop.AfterFunc(p.timeout, func() {
		if p.token != token || p.status.Terminal() {
			return
		}
		p.timer = nil
		p.token = ""
		p.logger.Info("No response from frame before timeout, treating it as blocked.",
			zap.String("url", p.url), zap.Duration("timeout", p.timeout))
		p.transition(frame.StatusBlocked)
	})

	if err := p.ch.SendToFrame(p.handle, protocol.Ping(token)); err != nil {
		// The timeout still resolves the attempt.
		p.logger.Debug("Failed to send liveness probe.", zap.Error(err))
	}
}

// Observe inspects one host-bound envelope. Messages from other frames,
// malformed payloads and stale acks are ignored.
func (p *Prober) Observe(env bus.Envelope) {
	if env.Source != p.handle || p.url == "" || p.status.Terminal() {
		return
	}
	msg, err := protocol.Decode(env.Data)
	if err != nil {
		return
	}
	switch msg.Type {
	case protocol.TypePong:
		if p.token == "" || msg.Token != p.token {
			p.logger.Debug("Ignoring stale liveness ack.", zap.String("token", msg.Token))
			return
		}
	case protocol.TypeScrollReport, protocol.TypeNavigate, protocol.TypeNavIntent:
	default:
		return
	}
	p.cancel()
	p.transition(frame.StatusLoaded)
}

func (p *Prober) cancel() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.token = ""
}

func (p *Prober) transition(next frame.Status) {
	prev := p.status
	p.status = next
	if prev != next {
		p.logger.Debug("Frame status changed.",
			zap.Stringer("from", prev), zap.Stringer("to", next), zap.String("url", p.url))
	}
	p.sink.Present(p.name, p.url, next)
}
