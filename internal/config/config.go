// File: internal/config/config.go
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Server() ServerConfig
	Browser() BrowserConfig
	Resilience() ResilienceConfig
	Workflow() WorkflowConfig
	Content() ContentConfig
	Engine() EngineConfig

	// Server Setters
	SetServerListenAddr(addr string)

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserRemoteURL(url string)
	SetBrowserExecPath(path string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	ServerCfg     ServerConfig     `mapstructure:"server" yaml:"server"`
	BrowserCfg    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	ResilienceCfg ResilienceConfig `mapstructure:"resilience" yaml:"resilience"`
	WorkflowCfg   WorkflowConfig   `mapstructure:"workflow" yaml:"workflow"`
	ContentCfg    ContentConfig    `mapstructure:"content" yaml:"content"`
	EngineCfg     EngineConfig     `mapstructure:"engine" yaml:"engine"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Server() ServerConfig         { return c.ServerCfg }
func (c *Config) Browser() BrowserConfig       { return c.BrowserCfg }
func (c *Config) Resilience() ResilienceConfig { return c.ResilienceCfg }
func (c *Config) Workflow() WorkflowConfig     { return c.WorkflowCfg }
func (c *Config) Content() ContentConfig       { return c.ContentCfg }
func (c *Config) Engine() EngineConfig         { return c.EngineCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetServerListenAddr(addr string) { c.ServerCfg.ListenAddr = addr }
func (c *Config) SetBrowserHeadless(b bool)       { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserRemoteURL(url string)  { c.BrowserCfg.RemoteURL = url }
func (c *Config) SetBrowserExecPath(path string)  { c.BrowserCfg.ExecPath = path }

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

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// BrowserConfig configures the chromedp allocator.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	DisableCache    bool           `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	// ExecPath overrides the Chrome binary. Empty means autodetect.
	ExecPath string `mapstructure:"exec_path" yaml:"exec_path"`
	// RemoteURL attaches to a running browser's DevTools endpoint instead of launching one.
	RemoteURL         string        `mapstructure:"remote_url" yaml:"remote_url"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// RetryConfig configures the bounded retry loop.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
}

// BreakerConfig configures one circuit.
type BreakerConfig struct {
	Threshold int           `mapstructure:"threshold" yaml:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
}

// CircuitConfig holds the default circuit settings plus per-category overrides.
type CircuitConfig struct {
	Threshold  int                      `mapstructure:"threshold" yaml:"threshold"`
	Cooldown   time.Duration            `mapstructure:"cooldown" yaml:"cooldown"`
	Categories map[string]BreakerConfig `mapstructure:"categories" yaml:"categories"`
}

// ForCategory returns the effective settings for one category. Zero fields
// in an override inherit the defaults.
func (c CircuitConfig) ForCategory(name string) BreakerConfig {
	out := BreakerConfig{Threshold: c.Threshold, Cooldown: c.Cooldown}
	if o, ok := c.Categories[name]; ok {
		if o.Threshold > 0 {
			out.Threshold = o.Threshold
		}
		if o.Cooldown > 0 {
			out.Cooldown = o.Cooldown
		}
	}
	return out
}

// ResilienceConfig groups the fault-isolation knobs.
type ResilienceConfig struct {
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	Retry       RetryConfig   `mapstructure:"retry" yaml:"retry"`
	Circuit     CircuitConfig `mapstructure:"circuit" yaml:"circuit"`
}

// WorkflowConfig configures session sequencing.
type WorkflowConfig struct {
	ContentMaxAge time.Duration `mapstructure:"content_max_age" yaml:"content_max_age"`
	// HistoryLimit bounds the retained call history. Zero is unbounded.
	HistoryLimit int `mapstructure:"history_limit" yaml:"history_limit"`
}

// MinBudgetUnits is the smallest accepted content.budget_units. Smaller
// budgets cannot hold one escaped rune per piece.
const MinBudgetUnits = 16

// ContentConfig configures the response budget.
type ContentConfig struct {
	BudgetUnits         int `mapstructure:"budget_units" yaml:"budget_units"`
	BytesPerUnit        int `mapstructure:"bytes_per_unit" yaml:"bytes_per_unit"`
	ChunkSetsPerSession int `mapstructure:"chunk_sets_per_session" yaml:"chunk_sets_per_session"`
}

// EngineConfig configures session management.
type EngineConfig struct {
	MaxSessions int `mapstructure:"max_sessions" yaml:"max_sessions"`
	// RateLimit is calls per second per session. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// NewDefaultConfig returns a configuration populated with every default.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults are static, so a decode failure is a programming error.
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default configuration does not decode: %v", err))
	}
	return &cfg
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "browsergate")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.listen_addr", "127.0.0.1:8931")
	v.SetDefault("server.request_timeout", "3m")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.viewport", map[string]int{"width": 1280, "height": 800})
	v.SetDefault("browser.navigation_timeout", "45s")

	// -- Resilience --
	v.SetDefault("resilience.call_timeout", "60s")
	v.SetDefault("resilience.retry.max_attempts", 2)
	v.SetDefault("resilience.retry.base_delay", "500ms")
	v.SetDefault("resilience.retry.max_delay", "5s")
	v.SetDefault("resilience.retry.attempt_timeout", "30s")
	v.SetDefault("resilience.circuit.threshold", 3)
	v.SetDefault("resilience.circuit.cooldown", "15s")

	// -- Workflow --
	v.SetDefault("workflow.content_max_age", "60s")
	v.SetDefault("workflow.history_limit", 0)

	// -- Content --
	v.SetDefault("content.budget_units", 25000)
	v.SetDefault("content.bytes_per_unit", 4)
	v.SetDefault("content.chunk_sets_per_session", 8)

	// -- Engine --
	v.SetDefault("engine.max_sessions", 8)
	v.SetDefault("engine.rate_limit", 0.0)
	v.SetDefault("engine.rate_burst", 1)
}

// NewConfigFromViper decodes and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
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
	if c.ServerCfg.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is a required configuration field")
	}
	if c.ResilienceCfg.CallTimeout <= 0 {
		return fmt.Errorf("resilience.call_timeout must be a positive duration")
	}
	if err := c.ResilienceCfg.Retry.Validate(); err != nil {
		return fmt.Errorf("resilience.retry configuration invalid: %w", err)
	}
	if err := c.ResilienceCfg.Circuit.Validate(); err != nil {
		return fmt.Errorf("resilience.circuit configuration invalid: %w", err)
	}
	if c.WorkflowCfg.ContentMaxAge < 0 {
		return fmt.Errorf("workflow.content_max_age must not be negative")
	}
	if c.WorkflowCfg.HistoryLimit < 0 {
		return fmt.Errorf("workflow.history_limit must not be negative")
	}
	if c.ContentCfg.BudgetUnits < MinBudgetUnits {
		return fmt.Errorf("content.budget_units must be at least %d", MinBudgetUnits)
	}
	if c.ContentCfg.BytesPerUnit <= 0 {
		return fmt.Errorf("content.bytes_per_unit must be a positive integer")
	}
	if c.ContentCfg.ChunkSetsPerSession <= 0 {
		return fmt.Errorf("content.chunk_sets_per_session must be a positive integer")
	}
	if c.EngineCfg.MaxSessions <= 0 {
		return fmt.Errorf("engine.max_sessions must be a positive integer")
	}
	if c.EngineCfg.RateLimit < 0 {
		return fmt.Errorf("engine.rate_limit must not be negative")
	}
	if c.EngineCfg.RateLimit > 0 && c.EngineCfg.RateBurst <= 0 {
		return fmt.Errorf("engine.rate_burst must be positive when rate limiting is enabled")
	}
	return nil
}

// Validate checks the retry settings.
func (r *RetryConfig) Validate() error {
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("max_attempts must be a positive integer")
	}
	if r.BaseDelay < 0 || r.MaxDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if r.MaxDelay > 0 && r.BaseDelay > r.MaxDelay {
		return fmt.Errorf("base_delay must not exceed max_delay")
	}
	if r.AttemptTimeout < 0 {
		return fmt.Errorf("attempt_timeout must not be negative")
	}
	return nil
}

// Validate checks the circuit settings, including every override.
func (c *CircuitConfig) Validate() error {
	if c.Threshold <= 0 {
		return fmt.Errorf("threshold must be a positive integer")
	}
	if c.Cooldown <= 0 {
		return fmt.Errorf("cooldown must be a positive duration")
	}
	names := make([]string, 0, len(c.Categories))
	for name := range c.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		o := c.Categories[name]
		if o.Threshold < 0 || o.Cooldown < 0 {
			return fmt.Errorf("categories.%s must not have negative values", name)
		}
	}
	return nil
}

// EnvPrefix is the prefix of every environment override, e.g. BROWSERGATE_SERVER_LISTEN_ADDR.
const EnvPrefix = "BROWSERGATE"

// BindEnvironment makes v read BROWSERGATE_* variables for every known key.
func BindEnvironment(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}
