package loop

import (
	"sort"
	"time"
)

// Manual is a deterministic Loop for tests. Nothing runs until the test
// calls Drain, Frame or Advance, and virtual time only moves through Advance.
// It is not safe for concurrent use.
type Manual struct {
	now    time.Duration
	seq    int
	queue  []func()
	frames []func()
	timers []*manualTimer
}

var _ Loop = (*Manual)(nil)

// NewManual returns a Manual loop at virtual time zero.
func NewManual() *Manual {
	return &Manual{}
}

type manualTimer struct {
	due     time.Duration
	seq     int
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (m *Manual) Post(fn func()) { m.queue = append(m.queue, fn) }

func (m *Manual) RequestFrame(fn func()) { m.frames = append(m.frames, fn) }

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{due: m.now + d, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Now is the elapsed virtual time.
func (m *Manual) Now() time.Duration { return m.now }

// Drain runs queued callbacks, including ones they queue, until the queue
// is empty.
func (m *Manual) Drain() {
	for len(m.queue) > 0 {
		fn := m.queue[0]
		m.queue = m.queue[1:]
		fn()
	}
}

// Frame delivers one frame tick: callbacks requested before the call run,
// ones requested during it wait for the next tick. The queue is drained
// before and after.
func (m *Manual) Frame() {
	m.Drain()
	batch := m.frames
	m.frames = nil
	for _, fn := range batch {
		fn()
	}
	m.Drain()
}

// Frames delivers n frame ticks.
func (m *Manual) Frames(n int) {
	for i := 0; i < n; i++ {
		m.Frame()
	}
}

// Advance moves virtual time forward by d, firing due timers in order and
// draining the queue after each one.
func (m *Manual) Advance(d time.Duration) {
	target := m.now + d
	m.Drain()
	for {
		next := m.nextDue(target)
		if next == nil {
			break
		}
		m.now = next.due
		next.stopped = true
		next.fn()
		m.Drain()
	}
	m.now = target
}

// PendingTimers counts timers that have neither fired nor been stopped.
func (m *Manual) PendingTimers() int {
	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (m *Manual) nextDue(limit time.Duration) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].due != m.timers[j].due {
			return m.timers[i].due < m.timers[j].due
		}
		return m.timers[i].seq < m.timers[j].seq
	})
	if len(m.timers) == 0 || m.timers[0].due > limit {
		return nil
	}
	return m.timers[0]
}
