// Package bus is the message channel between the host and its frames.
//
// It behaves like postMessage scoped to a parent and its child frames:
// delivery is asynchronous (scheduled on the loop), messages from one
// sender arrive in the order they were sent, and the receiver learns the
// sender only as an opaque frame.Handle. Listeners are looked up when a
// message is delivered, not when it is posted, so a listener removed in the
// meantime never sees it.
package bus

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dualview/internal/frame"
	"github.com/xkilldash9x/dualview/internal/loop"
	"github.com/xkilldash9x/dualview/internal/protocol"
)

var (
	// ErrClosed is returned by Post operations after Close.
	ErrClosed = errors.New("bus is closed")
	// ErrDirection is returned by Send operations for a message type that
	// never travels that way.
	ErrDirection = errors.New("message sent in the wrong direction")
)

// Envelope wraps one raw payload in transit.
type Envelope struct {
	ID        string
	Timestamp time.Time
	// Source is the sending frame, or frame.NoHandle for the host.
	Source frame.Handle
	Data   []byte
}

// Handler receives envelopes on the loop.
type Handler func(Envelope)

// Bus routes raw payloads between the host endpoint and frame endpoints.
type Bus struct {
	logger *zap.Logger
	loop   loop.Loop

	mu             sync.RWMutex
	nextID         int
	hostListeners  map[int]Handler
	frameListeners map[frame.Handle]map[int]Handler
	closed         bool
}

// New creates a Bus delivering on lp.
func New(logger *zap.Logger, lp loop.Loop) *Bus {
	return &Bus{
		logger:         logger.Named("bus"),
		loop:           lp,
		hostListeners:  make(map[int]Handler),
		frameListeners: make(map[frame.Handle]map[int]Handler),
	}
}

// PostToHost delivers data from the frame src to every host listener.
func (b *Bus) PostToHost(src frame.Handle, data []byte) error {
	env, err := b.envelope(src, data)
	if err != nil {
		return err
	}
	b.loop.Post(func() {
		for _, h := range b.snapshotHost() {
			h(env)
		}
	})
	return nil
}

// PostToFrame delivers data from the host to the listeners of dst. A frame
// with no listener (for example one whose document never ran an agent)
// silently swallows the message.
func (b *Bus) PostToFrame(dst frame.Handle, data []byte) error {
	if dst == frame.NoHandle {
		return fmt.Errorf("post to frame: empty handle")
	}
	env, err := b.envelope(frame.NoHandle, data)
	if err != nil {
		return err
	}
	b.loop.Post(func() {
		for _, h := range b.snapshotFrame(dst) {
			h(env)
		}
	})
	return nil
}

// SendToHost encodes m and posts it to the host on behalf of src.
func (b *Bus) SendToHost(src frame.Handle, m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if !m.Type.FromFrame() {
		return fmt.Errorf("%w: %s to host", ErrDirection, m.Type)
	}
	return b.PostToHost(src, data)
}

// SendToFrame encodes m and posts it to dst.
func (b *Bus) SendToFrame(dst frame.Handle, m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if m.Type.FromFrame() {
		return fmt.Errorf("%w: %s to frame", ErrDirection, m.Type)
	}
	return b.PostToFrame(dst, data)
}

// ListenHost registers h for everything frames post to the host. The
// returned function removes it and is safe to call more than once.
func (b *Bus) ListenHost(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.hostListeners[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.hostListeners, id)
	}
}

// ListenFrame registers h for messages the host posts to dst.
func (b *Bus) ListenFrame(dst frame.Handle, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.nextID
	b.nextID++
	if b.frameListeners[dst] == nil {
		b.frameListeners[dst] = make(map[int]Handler)
	}
	b.frameListeners[dst][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.frameListeners[dst]
		delete(subs, id)
		if len(subs) == 0 {
			delete(b.frameListeners, dst)
		}
	}
}

// HostListeners reports how many host listeners are registered.
func (b *Bus) HostListeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.hostListeners)
}

// FrameListeners reports how many listeners dst has.
func (b *Bus) FrameListeners(dst frame.Handle) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.frameListeners[dst])
}

// Close drops all listeners and rejects further posts. Messages already
// scheduled are delivered to nobody.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.hostListeners = make(map[int]Handler)
	b.frameListeners = make(map[frame.Handle]map[int]Handler)
	b.logger.Debug("Bus closed.")
}

func (b *Bus) envelope(src frame.Handle, data []byte) (Envelope, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return Envelope{}, ErrClosed
	}
	payload := make([]byte, len(data))
	copy(payload, data)
	return Envelope{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Source:    src,
		Data:      payload,
	}, nil
}

// snapshotHost copies the listener set so handlers can (un)subscribe
// without holding the lock.
func (b *Bus) snapshotHost() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, 0, len(b.hostListeners))
	for _, id := range sortedIDs(b.hostListeners) {
		out = append(out, b.hostListeners[id])
	}
	return out
}

func (b *Bus) snapshotFrame(dst frame.Handle) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.frameListeners[dst]
	out := make([]Handler, 0, len(subs))
	for _, id := range sortedIDs(subs) {
		out = append(out, subs[id])
	}
	return out
}

// sortedIDs keeps delivery in registration order.
func sortedIDs(m map[int]Handler) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
