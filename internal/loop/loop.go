// Package loop provides the single-threaded, cooperative scheduler every
// sync component runs on. Callbacks never run concurrently with each other,
// so state owned by agents, probers and the coordinator needs no locking as
// long as it is only touched from callbacks.
package loop

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Timer is a cancellable deferred callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer, false if it already ran or was stopped.
	Stop() bool
}

// Loop schedules callbacks onto one logical thread.
type Loop interface {
	// Post queues fn to run after everything already queued.
	Post(fn func())
	// AfterFunc runs fn on the loop once d has elapsed, unless stopped first.
	AfterFunc(d time.Duration, fn func()) Timer
	// RequestFrame runs fn on the next frame tick.
	RequestFrame(fn func())
}

// DefaultFrameInterval approximates a 60Hz paint cadence.
const DefaultFrameInterval = 16 * time.Millisecond

// EventLoop is the production Loop: one goroutine draining an unbounded FIFO
// queue, plus a ticker that flushes frame callbacks.
type EventLoop struct {
	logger        *zap.Logger
	frameInterval time.Duration

	mu     sync.Mutex
	queue  []func()
	frames []func()
	closed bool

	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	started atomic.Bool
}

var _ Loop = (*EventLoop)(nil)

// New creates an EventLoop. Call Start to begin processing.
func New(logger *zap.Logger, frameInterval time.Duration) *EventLoop {
	if frameInterval <= 0 {
		frameInterval = DefaultFrameInterval
	}
	return &EventLoop{
		logger:        logger.Named("loop"),
		frameInterval: frameInterval,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

// Start launches the loop goroutine. Calling it more than once is a no-op.
func (l *EventLoop) Start() {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	go l.run()
}

// Close stops the loop and waits for the in-flight callback to return.
// Queued callbacks that have not started are discarded.
func (l *EventLoop) Close() {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.frames = nil
		l.mu.Unlock()
		close(l.done)
	})
	if l.started.Load() {
		<-l.stopped
	}
}

func (l *EventLoop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *EventLoop) RequestFrame(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.frames = append(l.frames, fn)
	}
}

func (l *EventLoop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &eventTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.fired.CompareAndSwap(false, true) {
				fn()
			}
		})
	})
	return t
}

type eventTimer struct {
	timer *time.Timer
	// fired is claimed by whichever of Stop or the callback gets there first,
	// so a Stop issued after expiry but before the callback ran still wins.
	fired atomic.Bool
}

func (t *eventTimer) Stop() bool {
	t.timer.Stop()
	return t.fired.CompareAndSwap(false, true)
}

func (l *EventLoop) run() {
	defer close(l.stopped)

	ticker := time.NewTicker(l.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
			l.drain()
		case <-ticker.C:
			l.tick()
			l.drain()
		}
	}
}

func (l *EventLoop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 || l.closed {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.invoke(fn)
	}
}

func (l *EventLoop) tick() {
	l.mu.Lock()
	batch := l.frames
	l.frames = nil
	l.mu.Unlock()

	for _, fn := range batch {
		l.invoke(fn)
	}
}

// invoke runs one callback. A panicking callback is logged and the loop
// keeps going.
func (l *EventLoop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Loop callback panicked.",
				zap.Any("panic_reason", r),
				zap.String("stack", string(debug.Stack())))
		}
	}()
	fn()
}
