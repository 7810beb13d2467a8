package prober_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dualview/internal/bus"
	"github.com/xkilldash9x/dualview/internal/frame"
	"github.com/xkilldash9x/dualview/internal/loop"
	"github.com/xkilldash9x/dualview/internal/prober"
	"github.com/xkilldash9x/dualview/internal/protocol"
	"github.com/xkilldash9x/dualview/internal/status"
)

const (
	mobile frame.Handle = "mobile"
	other  frame.Handle = "desktop"
)

type transition struct {
	url string
	st  frame.Status
}

type harness struct {
	lp      *loop.Manual
	bus     *bus.Bus
	prober  *prober.Prober
	pings   []string
	history []transition
}

func newHarness(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	lp := loop.NewManual()
	b := bus.New(zaptest.NewLogger(t), lp)
	h := &harness{lp: lp, bus: b}

	n := 0
	sink := status.PresenterFunc(func(name, url string, st frame.Status) {
		assert.Equal(t, "mobile", name)
		h.history = append(h.history, transition{url, st})
	})
	h.prober = prober.New("mobile", mobile, b, lp, sink, zaptest.NewLogger(t), prober.Options{
		Timeout: timeout,
		NewToken: func() string {
			n++
			return fmt.Sprintf("t%d", n)
		},
	})
	h.prober.Attach()
	b.ListenFrame(mobile, func(env bus.Envelope) {
		m, err := protocol.Decode(env.Data)
		require.NoError(t, err)
		require.Equal(t, protocol.TypePing, m.Type)
		h.pings = append(h.pings, m.Token)
	})
	return h
}

func (h *harness) fromFrame(t *testing.T, src frame.Handle, m protocol.Message) {
	t.Helper()
	require.NoError(t, h.bus.SendToHost(src, m))
	h.lp.Drain()
}

func TestProber_InitialStateIsIdle(t *testing.T) {
	h := newHarness(t, time.Second)
	assert.Equal(t, frame.StatusIdle, h.prober.Status())
	assert.Empty(t, h.prober.URL())

	h.prober.OnLoad()
	h.lp.Advance(time.Minute)
	assert.Equal(t, frame.StatusIdle, h.prober.Status(), "load without a target is ignored")
}

func TestProber_PongResolvesLoaded(t *testing.T) {
	h := newHarness(t, time.Second)

	h.prober.SetURL("https://a.test/")
	assert.Equal(t, frame.StatusLoading, h.prober.Status())

	h.prober.OnLoad()
	h.lp.Drain()
	assert.Equal(t, frame.StatusChecking, h.prober.Status())
	require.Equal(t, []string{"t1"}, h.pings)

	h.fromFrame(t, mobile, protocol.Pong("t1", "https://a.test/"))
	assert.Equal(t, frame.StatusLoaded, h.prober.Status())

	h.lp.Advance(time.Minute)
	assert.Equal(t, frame.StatusLoaded, h.prober.Status(), "the timeout was cancelled")
	assert.Equal(t, []transition{
		{"https://a.test/", frame.StatusLoading},
		{"https://a.test/", frame.StatusChecking},
		{"https://a.test/", frame.StatusLoaded},
	}, h.history)
}

func TestProber_StaleTokenIsRejected(t *testing.T) {
	h := newHarness(t, time.Second)

	h.prober.SetURL("https://a.test/one")
	h.prober.OnLoad()
	h.prober.SetURL("https://a.test/two")
	h.prober.OnLoad()
	h.lp.Drain()
	require.Equal(t, []string{"t1", "t2"}, h.pings)

	h.fromFrame(t, mobile, protocol.Pong("t1", "https://a.test/one"))
	assert.Equal(t, frame.StatusChecking, h.prober.Status())

	h.fromFrame(t, mobile, protocol.Pong("t2", "https://a.test/two"))
	assert.Equal(t, frame.StatusLoaded, h.prober.Status())
	assert.Equal(t, "https://a.test/two", h.prober.URL())
}

func TestProber_BlockedTimeoutBounds(t *testing.T) {
	const timeout = 5 * time.Second
	h := newHarness(t, timeout)

	h.prober.SetURL("https://blocked.test/")
	h.prober.OnLoad()

	h.lp.Advance(timeout - time.Millisecond)
	assert.Equal(t, frame.StatusChecking, h.prober.Status(), "never before the timeout")

	h.lp.Advance(time.Millisecond)
	assert.Equal(t, frame.StatusBlocked, h.prober.Status(), "by the timeout")

	h.fromFrame(t, mobile, protocol.Pong("t1", "https://blocked.test/"))
	assert.Equal(t, frame.StatusBlocked, h.prober.Status(), "blocked is terminal for this attempt")
}

func TestProber_ProofOfLife(t *testing.T) {
	for _, msg := range []protocol.Message{
		protocol.ScrollReport(0.1, 0, 10, 0),
		protocol.Navigate("https://a.test/next"),
		protocol.NavIntent("https://a.test/next"),
	} {
		t.Run(string(msg.Type), func(t *testing.T) {
			h := newHarness(t, time.Second)
			h.prober.SetURL("https://a.test/")
			h.prober.OnLoad()

			h.fromFrame(t, mobile, msg)
			assert.Equal(t, frame.StatusLoaded, h.prober.Status())
		})
	}
}

func TestProber_IgnoresOtherFramesAndNoise(t *testing.T) {
	h := newHarness(t, time.Second)
	h.prober.SetURL("https://a.test/")
	h.prober.OnLoad()
	h.lp.Drain()

	h.fromFrame(t, other, protocol.Pong("t1", "https://a.test/"))
	h.fromFrame(t, other, protocol.ScrollReport(0.5, 0, 0, 0))
	require.NoError(t, h.bus.PostToHost(mobile, []byte(`{"type":"WHATEVER"}`)))
	require.NoError(t, h.bus.PostToHost(mobile, []byte(`garbage`)))
	h.lp.Drain()

	assert.Equal(t, frame.StatusChecking, h.prober.Status())
}

func TestProber_URLChangeResetsAndCancels(t *testing.T) {
	h := newHarness(t, time.Second)

	h.prober.SetURL("https://a.test/")
	h.prober.OnLoad()
	h.fromFrame(t, mobile, protocol.Pong("t1", "https://a.test/"))
	require.Equal(t, frame.StatusLoaded, h.prober.Status())

	h.prober.SetURL("https://b.test/")
	assert.Equal(t, frame.StatusLoading, h.prober.Status())
	h.prober.OnLoad()
	h.prober.SetURL("")
	assert.Equal(t, frame.StatusIdle, h.prober.Status())

	h.lp.Advance(time.Minute)
	assert.Equal(t, frame.StatusIdle, h.prober.Status(), "cancelled probe must not resolve")
	assert.Equal(t, 0, h.lp.PendingTimers())
}

func TestProber_RepeatedLoadReprobes(t *testing.T) {
	h := newHarness(t, time.Second)
	h.prober.SetURL("https://a.test/")

	h.prober.OnLoad()
	h.lp.Advance(500 * time.Millisecond)
	h.prober.OnLoad()
	h.lp.Drain()
	require.Equal(t, []string{"t1", "t2"}, h.pings)

	// The first timer was cancelled, so the deadline restarts from the second load.
	h.lp.Advance(700 * time.Millisecond)
	assert.Equal(t, frame.StatusChecking, h.prober.Status())
	h.lp.Advance(300 * time.Millisecond)
	assert.Equal(t, frame.StatusBlocked, h.prober.Status())
}

func TestProber_CloseDetaches(t *testing.T) {
	h := newHarness(t, time.Second)
	h.prober.SetURL("https://a.test/")
	h.prober.OnLoad()
	h.prober.Close()

	assert.Equal(t, 0, h.bus.HostListeners())
	h.lp.Advance(time.Minute)
	assert.Equal(t, frame.StatusChecking, h.prober.Status())
}
