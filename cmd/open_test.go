package cmd

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/dualview/internal/config"
)

type viewerCall struct {
	cfg         config.Interface
	target      string
	interactive bool
}

// stubViewer replaces runViewerFunc for the duration of the test.
func stubViewer(t *testing.T) *viewerCall {
	t.Helper()
	call := &viewerCall{}
	orig := runViewerFunc
	runViewerFunc = func(_ context.Context, cfg config.Interface, target string, interactive bool, _ io.Reader, _ io.Writer) error {
		call.cfg, call.target, call.interactive = cfg, target, interactive
		return nil
	}
	t.Cleanup(func() { runViewerFunc = orig })
	return call
}

func TestOpenCommand(t *testing.T) {
	t.Run("DefaultsFromConfig", func(t *testing.T) {
		call := stubViewer(t)
		_, err := executeCommand(t, "open", "example.com")
		require.NoError(t, err)

		require.NotNil(t, call.cfg)
		assert.Equal(t, "https://example.com", call.target)
		assert.True(t, call.interactive)
		assert.Equal(t, "iphone-14-pro", call.cfg.Host().Device)
		assert.Equal(t, config.ViewBoth, call.cfg.Host().View)
		assert.False(t, call.cfg.Host().Landscape)
		assert.Zero(t, call.cfg.Host().Width)
		assert.True(t, call.cfg.Sync().Mirror)
		assert.False(t, call.cfg.Browser().Headless)
	})

	t.Run("FlagsOverride", func(t *testing.T) {
		call := stubViewer(t)
		_, err := executeCommand(t, "open", "--device", "galaxy-s24", "--mirror=false",
			"--headless", "--probe-timeout", "9s", "--no-interactive", "http://localhost:8080/a")
		require.NoError(t, err)

		assert.Equal(t, "http://localhost:8080/a", call.target)
		assert.False(t, call.interactive)
		assert.Equal(t, "galaxy-s24", call.cfg.Host().Device)
		assert.False(t, call.cfg.Sync().Mirror)
		assert.True(t, call.cfg.Browser().Headless)
		assert.Equal(t, 9*time.Second, call.cfg.Prober().Timeout)
	})

	t.Run("LayoutFlags", func(t *testing.T) {
		call := stubViewer(t)
		_, err := executeCommand(t, "open", "--view", "Mobile", "--landscape", "--width", "600", "example.com")
		require.NoError(t, err)

		assert.Equal(t, config.ViewMobile, call.cfg.Host().View)
		assert.True(t, call.cfg.Host().Landscape)
		assert.Equal(t, 600, call.cfg.Host().Width)
	})

	t.Run("InvalidView", func(t *testing.T) {
		call := stubViewer(t)
		_, err := executeCommand(t, "open", "--view", "tablet", "example.com")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "host.view")
		assert.Nil(t, call.cfg)
	})

	t.Run("InvalidWidth", func(t *testing.T) {
		call := stubViewer(t)
		_, err := executeCommand(t, "open", "--width", "-5", "example.com")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "host.width")
		assert.Nil(t, call.cfg)
	})

	t.Run("UnchangedFlagsKeepEnvironment", func(t *testing.T) {
		t.Setenv("DUALVIEW_SYNC_MIRROR", "false")
		call := stubViewer(t)
		_, err := executeCommand(t, "open")
		require.NoError(t, err)

		assert.Empty(t, call.target)
		assert.False(t, call.cfg.Sync().Mirror)
	})

	t.Run("UnknownDevice", func(t *testing.T) {
		call := stubViewer(t)
		_, err := executeCommand(t, "open", "--device", "nokia-3310", "example.com")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown device "nokia-3310"`)
		assert.Contains(t, err.Error(), "galaxy-s24, galaxy-s24-ultra")
		assert.Nil(t, call.cfg)
	})

	t.Run("InvalidProbeTimeout", func(t *testing.T) {
		call := stubViewer(t)
		_, err := executeCommand(t, "open", "--probe-timeout", "0s", "example.com")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "prober.timeout")
		assert.Nil(t, call.cfg)
	})

	t.Run("BlankAddress", func(t *testing.T) {
		stubViewer(t)
		_, err := executeCommand(t, "open", "   ")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty address")
	})

	t.Run("TooManyArgs", func(t *testing.T) {
		stubViewer(t)
		_, err := executeCommand(t, "open", "a.com", "b.com")
		require.Error(t, err)
	})
}
