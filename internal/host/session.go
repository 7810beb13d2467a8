package host

import (
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"go.uber.org/zap"
)

// session maps CDP frame and execution context events for the host page
// onto its two slots. Every method runs on the loop.
type session struct {
	logger   *zap.Logger
	navigate navFunc
	slots    map[string]*slot

	mainFrame  cdp.FrameID
	topContext runtime.ExecutionContextID
	ready      bool

	// frameSlots is keyed by the child frame ids of the host page.
	frameSlots map[cdp.FrameID]*slot
	// contexts records the frame of every default execution context. Slots
	// are resolved at signal time because context creation and frame
	// navigation events arrive in either order.
	contexts map[runtime.ExecutionContextID]cdp.FrameID
}

// navFunc hands a navigation script to the evaluator. A later script with
// the same key supersedes one not yet run.
type navFunc func(contextID runtime.ExecutionContextID, key, expr string)

func newSession(logger *zap.Logger, navigate navFunc, slots ...*slot) *session {
	s := &session{
		logger:     logger.Named("session"),
		navigate:   navigate,
		slots:      make(map[string]*slot, len(slots)),
		frameSlots: make(map[cdp.FrameID]*slot),
		contexts:   make(map[runtime.ExecutionContextID]cdp.FrameID),
	}
	for _, sl := range slots {
		s.slots[sl.name] = sl
	}
	return s
}

// dispatch handles one CDP target event.
func (s *session) dispatch(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		s.onFrameNavigated(e.Frame)
	case *page.EventFrameDetached:
		s.onFrameDetached(e.FrameID)
	case *page.EventNavigatedWithinDocument:
		if sl, ok := s.frameSlots[e.FrameID]; ok {
			sl.observeSameDocument(e.URL)
		}
	case *runtime.EventExecutionContextCreated:
		s.onContextCreated(e.Context)
	case *runtime.EventExecutionContextDestroyed:
		s.onContextDestroyed(e.ExecutionContextID)
	case *runtime.EventExecutionContextsCleared:
		s.onContextsCleared()
	case *runtime.EventBindingCalled:
		if e.Name == BindingName {
			s.onBinding(e.ExecutionContextID, e.Payload)
		}
	}
}

func (s *session) onFrameNavigated(f *cdp.Frame) {
	if f == nil {
		return
	}
	if f.ParentID == "" {
		if s.mainFrame != f.ID {
			s.logger.Debug("Host page frame identified.", zap.String("frame_id", string(f.ID)))
		}
		s.mainFrame = f.ID
		return
	}
	if f.ParentID != s.mainFrame {
		return
	}
	sl, ok := s.slots[f.Name]
	if !ok {
		return
	}
	s.frameSlots[f.ID] = sl
	sl.observeNavigation(f.URL)
}

func (s *session) onFrameDetached(id cdp.FrameID) {
	if sl, ok := s.frameSlots[id]; ok {
		sl.detachDocument()
		delete(s.frameSlots, id)
	}
}

func (s *session) onContextCreated(desc *runtime.ExecutionContextDescription) {
	if desc == nil {
		return
	}
	aux, err := decodeContextAux(desc.AuxData)
	if err != nil || !aux.IsDefault {
		return
	}
	frameID := cdp.FrameID(aux.FrameID)
	s.contexts[desc.ID] = frameID
	if frameID == s.mainFrame {
		s.topContext = desc.ID
		s.ready = false
	}
}

func (s *session) onContextDestroyed(id runtime.ExecutionContextID) {
	frameID, ok := s.contexts[id]
	if !ok {
		return
	}
	delete(s.contexts, id)
	if id == s.topContext {
		s.topContext = 0
		s.ready = false
		return
	}
	if sl, ok := s.frameSlots[frameID]; ok {
		sl.detachDocument(id)
	}
}

func (s *session) onContextsCleared() {
	s.contexts = make(map[runtime.ExecutionContextID]cdp.FrameID)
	s.topContext = 0
	s.ready = false
	for _, sl := range s.slots {
		sl.detachDocument()
	}
}

func (s *session) onBinding(contextID runtime.ExecutionContextID, payload string) {
	sig, err := DecodeSignal(payload)
	if err != nil {
		s.logger.Debug("Dropping malformed signal.", zap.Error(err))
		return
	}

	if contextID != 0 && contextID == s.topContext {
		s.onHostSignal(sig)
		return
	}

	frameID, ok := s.contexts[contextID]
	if !ok {
		s.logger.Debug("Signal from an unknown execution context.", zap.Int64("context_id", int64(contextID)))
		return
	}
	sl, ok := s.frameSlots[frameID]
	if !ok {
		return
	}
	switch sig.Kind {
	case SignalReady, SignalLoad:
		// Only the host page may report these.
		return
	}
	sl.handleSignal(contextID, sig)
}

func (s *session) onHostSignal(sig Signal) {
	switch sig.Kind {
	case SignalReady:
		s.ready = true
		s.logger.Debug("Host page ready.")
		for _, name := range []string{FrameDesktop, FrameMobile} {
			if sl, ok := s.slots[name]; ok && sl.src != "" {
				s.setSrc(name, sl.src)
			}
		}
	case SignalLoad:
		if sl, ok := s.slots[sig.Frame]; ok {
			sl.prober.OnLoad()
		}
	}
}

// setSrc asks the host page to point an iframe at url. Before the page is
// ready the request is dropped; the ready signal replays every slot's src.
func (s *session) setSrc(name, url string) {
	if !s.ready {
		return
	}
	s.navigate(s.topContext, name, setSrcExpr(name, url))
}
