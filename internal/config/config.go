// File: internal/config/config.go
package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Navigation NavigationConfig `mapstructure:"navigation" yaml:"navigation"`
	Executor   ExecutorConfig   `mapstructure:"executor" yaml:"executor"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Report     ReportConfig     `mapstructure:"report" yaml:"report"`
}

// LoggerConfig holds all the configuration for the logger.
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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// EngineConfig describes one launchable browser engine.
type EngineConfig struct {
	// ExecPath is the browser binary. Empty lets chromedp search the usual locations.
	ExecPath string   `mapstructure:"exec_path" yaml:"exec_path"`
	Args     []string `mapstructure:"args" yaml:"args"`
}

// BrowserConfig holds settings for the browser engines.
type BrowserConfig struct {
	Headless        bool                    `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool                    `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string                `mapstructure:"args" yaml:"args"`
	DefaultEngine   string                  `mapstructure:"default_engine" yaml:"default_engine"`
	Engines         map[string]EngineConfig `mapstructure:"engines" yaml:"engines"`
	// Failover is the order in which replacement engines are tried when a visit escalates.
	Failover       []string      `mapstructure:"failover" yaml:"failover"`
	LaunchTimeout  time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	ViewportWidth  int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" yaml:"viewport_height"`
}

// EngineNames returns the configured engine names in sorted order.
func (b BrowserConfig) EngineNames() []string {
	names := make([]string, 0, len(b.Engines))
	for name := range b.Engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NavigationConfig tunes the visit escalation policy.
type NavigationConfig struct {
	LongTimeout  time.Duration `mapstructure:"long_timeout" yaml:"long_timeout"`
	ShortTimeout time.Duration `mapstructure:"short_timeout" yaml:"short_timeout"`
	BlankURL     string        `mapstructure:"blank_url" yaml:"blank_url"`
}

// ExecutorConfig holds the per-operation deadlines of the act executor.
type ExecutorConfig struct {
	TextWait        time.Duration `mapstructure:"text_wait" yaml:"text_wait"`
	ActionTimeout   time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	WaitTimeout     time.Duration `mapstructure:"wait_timeout" yaml:"wait_timeout"`
	StateTimeout    time.Duration `mapstructure:"state_timeout" yaml:"state_timeout"`
	PageTimeout     time.Duration `mapstructure:"page_timeout" yaml:"page_timeout"`
	SettleTimeout   time.Duration `mapstructure:"settle_timeout" yaml:"settle_timeout"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	IdleQuietPeriod time.Duration `mapstructure:"idle_quiet_period" yaml:"idle_quiet_period"`
	MaxPresses      int           `mapstructure:"max_presses" yaml:"max_presses"`
}

// StoreConfig configures optional report persistence.
type StoreConfig struct {
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
}

// MetricsConfig configures the prometheus listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// ReportConfig controls where finished reports are written.
type ReportConfig struct {
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	Indent    bool   `mapstructure:"indent" yaml:"indent"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
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
	v.SetDefault("logger.service_name", "pagecheck")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.default_engine", "chromium")
	v.SetDefault("browser.engines", map[string]any{
		"chromium": map[string]any{"exec_path": ""},
		"chrome":   map[string]any{"exec_path": ""},
	})
	v.SetDefault("browser.failover", []string{"chromium", "chrome"})
	v.SetDefault("browser.launch_timeout", "30s")
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 1024)

	// -- Navigation --
	v.SetDefault("navigation.long_timeout", "30s")
	v.SetDefault("navigation.short_timeout", "15s")
	v.SetDefault("navigation.blank_url", "about:blank")

	// -- Executor --
	v.SetDefault("executor.text_wait", "2s")
	v.SetDefault("executor.action_timeout", "5s")
	v.SetDefault("executor.wait_timeout", "15s")
	v.SetDefault("executor.state_timeout", "10s")
	v.SetDefault("executor.page_timeout", "15s")
	v.SetDefault("executor.settle_timeout", "5s")
	v.SetDefault("executor.poll_interval", "250ms")
	v.SetDefault("executor.idle_quiet_period", "500ms")
	v.SetDefault("executor.max_presses", 300)

	// -- Store / Metrics / Report --
	v.SetDefault("store.database_url", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("report.output_dir", "reports")
	v.SetDefault("report.indent", true)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The connection string usually carries a password, keep it out of config files.
	_ = v.BindEnv("store.database_url", "PAGECHECK_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser configuration invalid: %w", err)
	}
	if err := c.Navigation.Validate(); err != nil {
		return fmt.Errorf("navigation configuration invalid: %w", err)
	}
	if err := c.Executor.Validate(); err != nil {
		return fmt.Errorf("executor configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the engine registry.
func (b *BrowserConfig) Validate() error {
	if len(b.Engines) == 0 {
		return fmt.Errorf("at least one engine must be configured under browser.engines")
	}
	if b.DefaultEngine != "" {
		if _, ok := b.Engines[b.DefaultEngine]; !ok {
			return fmt.Errorf("default_engine %q is not a configured engine", b.DefaultEngine)
		}
	}
	for _, name := range b.Failover {
		if _, ok := b.Engines[name]; !ok {
			return fmt.Errorf("failover engine %q is not a configured engine", name)
		}
	}
	return nil
}

// Validate checks the escalation timeouts.
func (n *NavigationConfig) Validate() error {
	if n.LongTimeout <= 0 || n.ShortTimeout <= 0 {
		return fmt.Errorf("long_timeout and short_timeout must be positive durations")
	}
	if n.ShortTimeout > n.LongTimeout {
		return fmt.Errorf("short_timeout (%v) must not exceed long_timeout (%v)", n.ShortTimeout, n.LongTimeout)
	}
	return nil
}

// Validate checks the executor deadlines.
func (e *ExecutorConfig) Validate() error {
	if e.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if e.ActionTimeout <= 0 || e.WaitTimeout <= 0 || e.StateTimeout <= 0 || e.PageTimeout <= 0 {
		return fmt.Errorf("action, wait, state and page timeouts must be positive durations")
	}
	if e.MaxPresses <= 0 {
		return fmt.Errorf("max_presses must be greater than 0")
	}
	return nil
}
