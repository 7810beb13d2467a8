// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "dualview", cfg.Logger().ServiceName)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, "127.0.0.1:0", cfg.Host().ListenAddr)
	assert.Equal(t, "iphone-14-pro", cfg.Host().Device)
	assert.Equal(t, ViewBoth, cfg.Host().View)
	assert.False(t, cfg.Host().Landscape)
	assert.Zero(t, cfg.Host().Width)
	assert.True(t, cfg.Sync().Mirror)
	assert.Equal(t, 2, cfg.Sync().GuardFrames)
	assert.Equal(t, 16*time.Millisecond, cfg.Sync().FrameInterval)
	assert.Equal(t, 50*time.Millisecond, cfg.Agent().ScrollDebounce)
	assert.Equal(t, 1500*time.Millisecond, cfg.Agent().PollInterval)
	assert.Equal(t, 5*time.Second, cfg.Prober().Timeout)
	assert.NoError(t, cfg.Validate(), "defaults must be valid")
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.SetBrowserHeadless(true)
	cfg.SetHostDevice("pixel-8")
	cfg.SetHostView(ViewMobile)
	cfg.SetHostLandscape(true)
	cfg.SetHostWidth(600)
	cfg.SetSyncMirror(false)
	cfg.SetProberTimeout(9 * time.Second)

	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, "pixel-8", cfg.Host().Device)
	assert.Equal(t, ViewMobile, cfg.Host().View)
	assert.True(t, cfg.Host().Landscape)
	assert.Equal(t, 600, cfg.Host().Width)
	assert.False(t, cfg.Sync().Mirror)
	assert.Equal(t, 9*time.Second, cfg.Prober().Timeout)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad log format", func(c *Config) { c.LoggerCfg.Format = "xml" }, "logger.format must be 'console' or 'json'"},
		{"zero window", func(c *Config) { c.BrowserCfg.WindowWidth = 0 }, "browser.window_width and browser.window_height must be positive integers"},
		{"no listen addr", func(c *Config) { c.HostCfg.ListenAddr = "" }, "host.listen_addr is a required configuration field"},
		{"unknown view", func(c *Config) { c.HostCfg.View = "tablet" }, "host.view must be 'both', 'desktop' or 'mobile'"},
		{"negative width", func(c *Config) { c.HostCfg.Width = -1 }, "host.width must be between 0 and 3840"},
		{"huge width", func(c *Config) { c.HostCfg.Width = 5000 }, "host.width must be between 0 and 3840"},
		{"zero eval queue", func(c *Config) { c.HostCfg.EvalQueueSize = 0 }, "host.eval_queue_size must be a positive integer"},
		{"negative eval timeout", func(c *Config) { c.HostCfg.EvalTimeout = -time.Second }, "host.eval_timeout must be a positive duration"},
		{"zero guard frames", func(c *Config) { c.SyncCfg.GuardFrames = 0 }, "guard_frames must be greater than 0"},
		{"zero frame interval", func(c *Config) { c.SyncCfg.FrameInterval = 0 }, "frame_interval must be a positive duration"},
		{"zero debounce", func(c *Config) { c.AgentCfg.ScrollDebounce = 0 }, "scroll_debounce must be a positive duration"},
		{"zero poll", func(c *Config) { c.AgentCfg.PollInterval = 0 }, "poll_interval must be a positive duration"},
		{"zero probe timeout", func(c *Config) { c.ProberCfg.Timeout = 0 }, "prober.timeout must be a positive duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("json format accepted in any case", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.LoggerCfg.Format = "JSON"
		assert.NoError(t, cfg.Validate())
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
host:
  device: galaxy-s24
  view: mobile
  landscape: true
  width: 500
sync:
  mirror: false
  guard_frames: 3
prober:
  timeout: 8s
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "galaxy-s24", cfg.Host().Device)
		assert.Equal(t, ViewMobile, cfg.Host().View)
		assert.True(t, cfg.Host().Landscape)
		assert.Equal(t, 500, cfg.Host().Width)
		assert.False(t, cfg.Sync().Mirror)
		assert.Equal(t, 3, cfg.Sync().GuardFrames)
		assert.Equal(t, 8*time.Second, cfg.Prober().Timeout)
		// Untouched keys keep their defaults.
		assert.Equal(t, 50*time.Millisecond, cfg.Agent().ScrollDebounce)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("sync.guard_frames", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "guard_frames must be greater than 0")
	})

	t.Run("Log File Home Expansion", func(t *testing.T) {
		home, err := homedir.Dir()
		require.NoError(t, err)

		v := viper.New()
		SetDefaults(v)
		v.Set("logger.log_file", "~/dualview/dualview.log")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "dualview", "dualview.log"), cfg.Logger().LogFile)
	})
}

// -- Struct and Mapping Tests --

func TestConfigStructureMapping(t *testing.T) {
	yamlInput := `
logger:
  level: debug
  log_file: /var/log/dualview.log
browser:
  args: ["--lang=en-US", "mute-audio"]
agent:
  scroll_debounce: 80ms
`
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(yamlInput)))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, "debug", cfg.Logger().Level)
	assert.Equal(t, "/var/log/dualview.log", cfg.Logger().LogFile)
	assert.Equal(t, []string{"--lang=en-US", "mute-audio"}, cfg.Browser().Args)
	assert.Equal(t, 80*time.Millisecond, cfg.Agent().ScrollDebounce)
}
