package host

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/runtime"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dualview/internal/agent"
	"github.com/xkilldash9x/dualview/internal/bus"
	"github.com/xkilldash9x/dualview/internal/frame"
	"github.com/xkilldash9x/dualview/internal/loop"
	"github.com/xkilldash9x/dualview/internal/prober"
)

// Frame names, shared with the iframe ids in host.html.
const (
	FrameDesktop = "desktop"
	FrameMobile  = "mobile"
)

// enqueueFunc hands a script to the evaluator for one execution context.
type enqueueFunc func(contextID runtime.ExecutionContextID, expr string) bool

// document is the agent.Document for one execution context inside a frame.
// Reads come from the geometry the shim last reported; scrolls are applied
// asynchronously through the evaluator.
type document struct {
	contextID runtime.ExecutionContextID
	enqueue   enqueueFunc
	metrics   agent.Metrics
	href      string
}

var _ agent.Document = (*document)(nil)

func (d *document) Metrics() agent.Metrics { return d.metrics }
func (d *document) Location() string       { return d.href }

func (d *document) ScrollTo(left, top float64) {
	// The real position arrives with the next metrics signal; until then
	// assume the scroll landed.
	d.metrics.ScrollLeft = left
	d.metrics.ScrollTop = top
	d.enqueue(d.contextID, applyScrollExpr(left, top))
}

func (d *document) update(m *agent.Metrics) {
	if m != nil {
		d.metrics = *m
	}
}

func applyScrollExpr(left, top float64) string {
	return fmt.Sprintf("window.__dualviewShim && window.__dualviewShim.applyScroll(%s, %s)",
		formatFloat(left), formatFloat(top))
}

func setSrcExpr(name, url string) string {
	return fmt.Sprintf("window.dualviewSetSrc(%s, %s)", strconv.Quote(name), strconv.Quote(url))
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// slot is one iframe of the host page. It is the frame.Target the
// coordinator drives, owns the frame's Prober, and runs a fresh Agent for
// every document in the frame whose shim says hello. Loop-owned.
type slot struct {
	name   string
	handle frame.Handle
	logger *zap.Logger

	bus       *bus.Bus
	loop      loop.Loop
	agentOpts agent.Options
	enqueue   enqueueFunc
	setSrc    func(name, url string)
	prober    *prober.Prober

	doc       *document
	agent     *agent.Agent
	src       string
	current   string
	confirmed string
}

var _ frame.Target = (*slot)(nil)

type slotDeps struct {
	bus       *bus.Bus
	loop      loop.Loop
	agentOpts agent.Options
	enqueue   enqueueFunc
	setSrc    func(name, url string)
	prober    *prober.Prober
}

func newSlot(name string, logger *zap.Logger, deps slotDeps) *slot {
	return &slot{
		name:      name,
		handle:    frame.Handle(name),
		logger:    logger.Named("slot").With(zap.String("frame", name)),
		bus:       deps.bus,
		loop:      deps.loop,
		agentOpts: deps.agentOpts,
		enqueue:   deps.enqueue,
		setSrc:    deps.setSrc,
		prober:    deps.prober,
	}
}

func (s *slot) Handle() frame.Handle { return s.handle }

// URL is the frame's best known location: what it last reported or
// navigated to, falling back to the assigned src.
func (s *slot) URL() string {
	if s.current != "" {
		return s.current
	}
	return s.src
}

// SetURL assigns the iframe src, which reloads the frame.
func (s *slot) SetURL(url string) {
	s.src = url
	s.current = url
	s.confirmed = url
	s.prober.SetURL(url)
	s.setSrc(s.name, url)
	s.logger.Debug("Frame src assigned.", zap.String("url", url))
}

// Status returns the prober's view of the frame.
func (s *slot) Status() frame.Status { return s.prober.Status() }

// observeNavigation records a committed navigation seen on the frame tree.
// Browser error pages do not count as a location.
func (s *slot) observeNavigation(url string) {
	if !isWebURL(url) {
		return
	}
	s.current = url
}

// handleSignal applies one shim signal from contextID.
func (s *slot) handleSignal(contextID runtime.ExecutionContextID, sig Signal) {
	if sig.Kind == SignalHello {
		s.attachDocument(contextID, sig)
		return
	}
	if s.doc == nil || s.doc.contextID != contextID {
		s.logger.Debug("Signal from a document without an agent, ignoring.",
			zap.String("kind", string(sig.Kind)), zap.Int64("context_id", int64(contextID)))
		return
	}

	s.doc.update(sig.Metrics)
	// Every signal carries the live href, which is what the agent's poll
	// compares against.
	s.setHref(sig.Href)
	switch sig.Kind {
	case SignalScroll:
		s.agent.OnScroll()
	case SignalLocation:
		s.agent.OnLocationChange()
		s.confirmed = s.doc.href
	case SignalAnchor:
		s.agent.OnAnchorActivate(sig.RawHref)
	}
}

// observeSameDocument records a history or fragment navigation that kept
// the current document, as reported by the browser rather than the shim.
func (s *slot) observeSameDocument(url string) {
	if s.doc == nil {
		s.observeNavigation(url)
		return
	}
	if !isWebURL(url) {
		return
	}
	s.setHref(url)
	s.agent.OnLocationChange()
	s.confirmed = s.doc.href
}

// attachDocument installs an agent for a newly greeted document. The agent
// starts from the URL this frame last confirmed, so a document that landed
// somewhere else (a redirect or an in-frame link) reports a navigation.
func (s *slot) attachDocument(contextID runtime.ExecutionContextID, sig Signal) {
	if s.doc != nil && s.doc.contextID == contextID {
		return
	}
	s.detachDocument()

	s.doc = &document{contextID: contextID, enqueue: s.enqueue, href: s.confirmed}
	s.doc.update(sig.Metrics)
	s.agent = agent.New(s.handle, s.doc, s.bus, s.loop, s.logger, s.agentOpts)
	s.agent.Install()

	s.setHref(sig.Href)
	s.agent.OnLocationChange()
	s.confirmed = s.doc.href
	s.logger.Debug("Agent attached to document.",
		zap.Int64("context_id", int64(contextID)), zap.String("url", s.doc.href))
}

// detachDocument uninstalls the agent, if any. Only the given context, or
// any context when none is given, is detached.
func (s *slot) detachDocument(contextIDs ...runtime.ExecutionContextID) {
	if s.doc == nil {
		return
	}
	if len(contextIDs) > 0 && contextIDs[0] != s.doc.contextID {
		return
	}
	s.agent.Uninstall()
	s.agent = nil
	s.doc = nil
}

func (s *slot) setHref(href string) {
	if !isWebURL(href) {
		return
	}
	s.doc.href = href
	s.current = href
}

func (s *slot) close() {
	s.detachDocument()
	s.prober.Close()
}

func isWebURL(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
