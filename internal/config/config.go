// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Host() HostConfig
	Sync() SyncConfig
	Agent() AgentConfig
	Prober() ProberConfig

	// Setters for values the CLI flags override.
	SetBrowserHeadless(bool)
	SetHostDevice(string)
	SetHostView(string)
	SetHostLandscape(bool)
	SetHostWidth(int)
	SetSyncMirror(bool)
	SetProberTimeout(time.Duration)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	HostCfg    HostConfig    `mapstructure:"host" yaml:"host"`
	SyncCfg    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	AgentCfg   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	ProberCfg  ProberConfig  `mapstructure:"prober" yaml:"prober"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Host() HostConfig       { return c.HostCfg }
func (c *Config) Sync() SyncConfig       { return c.SyncCfg }
func (c *Config) Agent() AgentConfig     { return c.AgentCfg }
func (c *Config) Prober() ProberConfig   { return c.ProberCfg }

func (c *Config) SetBrowserHeadless(b bool)        { c.BrowserCfg.Headless = b }
func (c *Config) SetHostDevice(id string)          { c.HostCfg.Device = id }
func (c *Config) SetHostView(view string)          { c.HostCfg.View = view }
func (c *Config) SetHostLandscape(b bool)          { c.HostCfg.Landscape = b }
func (c *Config) SetHostWidth(px int)              { c.HostCfg.Width = px }
func (c *Config) SetSyncMirror(b bool)             { c.SyncCfg.Mirror = b }
func (c *Config) SetProberTimeout(d time.Duration) { c.ProberCfg.Timeout = d }

// LoggerConfig configures the global zap logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the Chrome instance the host page runs in.
type BrowserConfig struct {
	Headless   bool     `mapstructure:"headless" yaml:"headless"`
	DisableGPU bool     `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	ExecPath   string   `mapstructure:"exec_path" yaml:"exec_path"`
	Args       []string `mapstructure:"args" yaml:"args"`
	// WindowWidth and WindowHeight size the top level window, which holds both frames.
	WindowWidth  int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int           `mapstructure:"window_height" yaml:"window_height"`
	StartTimeout time.Duration `mapstructure:"start_timeout" yaml:"start_timeout"`
}

// Views the host page can show.
const (
	ViewBoth    = "both"
	ViewDesktop = "desktop"
	ViewMobile  = "mobile"
)

// MaxViewportWidth bounds host.width.
const MaxViewportWidth = 3840

// HostConfig configures the local page that embeds both frames.
type HostConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	Device     string `mapstructure:"device" yaml:"device"`
	// View is one of ViewBoth, ViewDesktop or ViewMobile. Mirroring only
	// runs when both frames are shown.
	View      string `mapstructure:"view" yaml:"view"`
	Landscape bool   `mapstructure:"landscape" yaml:"landscape"`
	// Width overrides the mobile viewport width in CSS pixels. 0 keeps the preset's.
	Width int `mapstructure:"width" yaml:"width"`
	// EvalQueueSize bounds pending in-frame commands. New ones are dropped when it is full.
	EvalQueueSize int           `mapstructure:"eval_queue_size" yaml:"eval_queue_size"`
	EvalTimeout   time.Duration `mapstructure:"eval_timeout" yaml:"eval_timeout"`
}

// SyncConfig tunes the coordinator and the loop it runs on.
type SyncConfig struct {
	Mirror        bool          `mapstructure:"mirror" yaml:"mirror"`
	GuardFrames   int           `mapstructure:"guard_frames" yaml:"guard_frames"`
	FrameInterval time.Duration `mapstructure:"frame_interval" yaml:"frame_interval"`
}

// AgentConfig tunes the per-document agent.
type AgentConfig struct {
	ScrollDebounce time.Duration `mapstructure:"scroll_debounce" yaml:"scroll_debounce"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// ProberConfig tunes liveness detection.
type ProberConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "dualview")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.disable_gpu", false)
	v.SetDefault("browser.window_width", 1600)
	v.SetDefault("browser.window_height", 1000)
	v.SetDefault("browser.start_timeout", "30s")

	// -- Host --
	v.SetDefault("host.listen_addr", "127.0.0.1:0")
	v.SetDefault("host.device", "iphone-14-pro")
	v.SetDefault("host.view", ViewBoth)
	v.SetDefault("host.landscape", false)
	v.SetDefault("host.width", 0)
	v.SetDefault("host.eval_queue_size", 64)
	v.SetDefault("host.eval_timeout", "2s")

	// -- Sync --
	v.SetDefault("sync.mirror", true)
	v.SetDefault("sync.guard_frames", 2)
	v.SetDefault("sync.frame_interval", "16ms")

	// -- Agent --
	v.SetDefault("agent.scroll_debounce", "50ms")
	v.SetDefault("agent.poll_interval", "1500ms")

	// -- Prober --
	v.SetDefault("prober.timeout", "5s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.LoggerCfg.LogFile != "" {
		expanded, err := homedir.Expand(cfg.LoggerCfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand logger.log_file: %w", err)
		}
		cfg.LoggerCfg.LogFile = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LoggerCfg.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be 'console' or 'json'")
	}
	if c.BrowserCfg.WindowWidth <= 0 || c.BrowserCfg.WindowHeight <= 0 {
		return fmt.Errorf("browser.window_width and browser.window_height must be positive integers")
	}
	if c.HostCfg.ListenAddr == "" {
		return fmt.Errorf("host.listen_addr is a required configuration field")
	}
	switch c.HostCfg.View {
	case ViewBoth, ViewDesktop, ViewMobile:
	default:
		return fmt.Errorf("host.view must be 'both', 'desktop' or 'mobile'")
	}
	if c.HostCfg.Width < 0 || c.HostCfg.Width > MaxViewportWidth {
		return fmt.Errorf("host.width must be between 0 and %d", MaxViewportWidth)
	}
	if c.HostCfg.EvalQueueSize <= 0 {
		return fmt.Errorf("host.eval_queue_size must be a positive integer")
	}
	if c.HostCfg.EvalTimeout <= 0 {
		return fmt.Errorf("host.eval_timeout must be a positive duration")
	}
	if err := c.SyncCfg.Validate(); err != nil {
		return fmt.Errorf("sync configuration invalid: %w", err)
	}
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if c.ProberCfg.Timeout <= 0 {
		return fmt.Errorf("prober.timeout must be a positive duration")
	}
	return nil
}

// Validate checks the SyncConfig settings.
func (s *SyncConfig) Validate() error {
	if s.GuardFrames <= 0 {
		return fmt.Errorf("guard_frames must be greater than 0")
	}
	if s.FrameInterval <= 0 {
		return fmt.Errorf("frame_interval must be a positive duration")
	}
	return nil
}

// Validate checks the AgentConfig settings.
func (a *AgentConfig) Validate() error {
	if a.ScrollDebounce <= 0 {
		return fmt.Errorf("scroll_debounce must be a positive duration")
	}
	if a.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	return nil
}
