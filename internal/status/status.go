// Package status is the boundary between frame liveness tracking and
// whatever shows it to the user.
package status

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dualview/internal/frame"
)

// Presenter receives every frame status transition along with the URL it
// refers to.
type Presenter interface {
	Present(frameName, url string, st frame.Status)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(frameName, url string, st frame.Status)

func (f PresenterFunc) Present(frameName, url string, st frame.Status) { f(frameName, url, st) }

// Discard drops everything.
var Discard Presenter = PresenterFunc(func(string, string, frame.Status) {})

// Multi fans a transition out to several presenters, in order.
func Multi(ps ...Presenter) Presenter {
	return PresenterFunc(func(name, url string, st frame.Status) {
		for _, p := range ps {
			p.Present(name, url, st)
		}
	})
}

// Log records every transition on logger. Blocked frames are warnings.
func Log(logger *zap.Logger) Presenter {
	logger = logger.Named("status")
	return PresenterFunc(func(name, url string, st frame.Status) {
		fields := []zap.Field{zap.String("frame", name), zap.String("url", url), zap.Stringer("status", st)}
		if st == frame.StatusBlocked {
			logger.Warn("Frame refused to be embedded.", fields...)
			return
		}
		logger.Debug("Frame status changed.", fields...)
	})
}

// Styles holds the per-status styling used by Terminal.
type Styles struct {
	Frame   lipgloss.Style
	URL     lipgloss.Style
	Idle    lipgloss.Style
	Loading lipgloss.Style
	Loaded  lipgloss.Style
	Blocked lipgloss.Style
	Hint    lipgloss.Style
}

// NewStyles returns the default palette.
func NewStyles() Styles {
	return Styles{
		Frame:   lipgloss.NewStyle().Bold(true).Width(8),
		URL:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Idle:    lipgloss.NewStyle().Faint(true),
		Loading: lipgloss.NewStyle().Foreground(lipgloss.Color("214")), // yellow
		Loaded:  lipgloss.NewStyle().Foreground(lipgloss.Color("78")),  // green
		Blocked: lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true),
		Hint: lipgloss.NewStyle().
			Faint(true).
			Italic(true).
			PaddingLeft(2),
	}
}

func (s Styles) forStatus(st frame.Status) lipgloss.Style {
	switch st {
	case frame.StatusLoading, frame.StatusChecking:
		return s.Loading
	case frame.StatusLoaded:
		return s.Loaded
	case frame.StatusBlocked:
		return s.Blocked
	default:
		return s.Idle
	}
}

// Terminal writes one styled line per transition, plus an explanation
// with a direct link when a frame is blocked. It is safe for concurrent use.
type Terminal struct {
	mu     sync.Mutex
	out    io.Writer
	styles Styles
}

// NewTerminal creates a Terminal writing to out.
func NewTerminal(out io.Writer, styles Styles) *Terminal {
	return &Terminal{out: out, styles: styles}
}

func (t *Terminal) Present(frameName, url string, st frame.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, t.Render(frameName, url, st))
}

// Render formats a transition without writing it.
func (t *Terminal) Render(frameName, url string, st frame.Status) string {
	line := lipgloss.JoinHorizontal(lipgloss.Top,
		t.styles.Frame.Render(frameName),
		t.styles.forStatus(st).Render(fmt.Sprintf("%-9s", st)),
		" ",
		t.styles.URL.Render(url),
	)
	if st != frame.StatusBlocked {
		return line
	}
	hint := t.styles.Hint.Render(
		"This site refused to be shown inside a frame. Open it directly: " + url)
	return lipgloss.JoinVertical(lipgloss.Left, line, hint)
}
