package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BrowserConfig holds browser session settings. The engine attaches to an
// already-running browser over its DevTools endpoint; it never launches or
// kills the browser itself.
type BrowserConfig struct {
	DebugHost     string        `yaml:"debug_host"`     // default 127.0.0.1
	DebugPort     int           `yaml:"debug_port"`     // default 9222
	ActionTimeout time.Duration `yaml:"action_timeout"` // per driver call, default 30s
}

// DebugURL returns the DevTools HTTP base URL.
func (b BrowserConfig) DebugURL() string {
	return fmt.Sprintf("http://%s:%d", b.DebugHost, b.DebugPort)
}

// EngineConfig holds the orchestration engine's bounds.
type EngineConfig struct {
	LocateTimeout   time.Duration `yaml:"locate_timeout"`   // per locate call, default 10s
	NavigateTimeout time.Duration `yaml:"navigate_timeout"` // per goto call, default 15s
	PollInterval    time.Duration `yaml:"poll_interval"`    // convergence poll, default 500ms
	TaskDeadline    time.Duration `yaml:"task_deadline"`    // whole task, default 1h
	RetryBudget     int           `yaml:"retry_budget"`     // per-step retries, default 3
	// AutoPolicy, when non-empty, is applied to step failures without asking
	// the operator: "retry", "skip", or "abort".
	AutoPolicy string `yaml:"auto_policy"`
}

// DecisionConfig holds decision-model adapter settings.
type DecisionConfig struct {
	Provider  string        `yaml:"provider"` // "openai" or "rules" (default)
	Endpoint  string        `yaml:"endpoint"` // OpenAI-compatible base URL
	Model     string        `yaml:"model"`
	APIKeyEnv string        `yaml:"api_key_env"` // env var holding the key, default WEBPILOT_API_KEY
	Timeout   time.Duration `yaml:"timeout"`     // default 60s

	RequestsPerMin int `yaml:"requests_per_min"` // model call rate, default 30
	BurstSize      int `yaml:"burst_size"`       // default 5

	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the decision-model circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"` // consecutive failures before opening, default 5
	Timeout     time.Duration `yaml:"timeout"`      // open state duration, default 30s
	Interval    time.Duration `yaml:"interval"`     // closed-state reset period, default 60s
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// HistoryConfig holds task-run history settings.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // SQLite file, default ./webpilot-history.db
}

// Config is the top-level application configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Engine   EngineConfig   `yaml:"engine"`
	Decision DecisionConfig `yaml:"decision"`
	Logger   LoggerConfig   `yaml:"logger"`
	History  HistoryConfig  `yaml:"history"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file, applies env overrides and defaults, and
// validates the result. A missing file is not an error: defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Run on defaults.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides selected fields from environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("WEBPILOT_DEBUG_HOST"); v != "" {
		c.Browser.DebugHost = v
	}
	if v := os.Getenv("WEBPILOT_DEBUG_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			c.Browser.DebugPort = port
		}
	}
	if v := os.Getenv("WEBPILOT_LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := os.Getenv("WEBPILOT_DECISION_ENDPOINT"); v != "" {
		c.Decision.Endpoint = v
	}
	if v := os.Getenv("WEBPILOT_DECISION_MODEL"); v != "" {
		c.Decision.Model = v
	}
}

func (c *Config) applyDefaults() {
	if c.Browser.DebugHost == "" {
		c.Browser.DebugHost = "127.0.0.1"
	}
	if c.Browser.DebugPort == 0 {
		c.Browser.DebugPort = 9222
	}
	if c.Browser.ActionTimeout == 0 {
		c.Browser.ActionTimeout = 30 * time.Second
	}

	if c.Engine.LocateTimeout == 0 {
		c.Engine.LocateTimeout = 10 * time.Second
	}
	if c.Engine.NavigateTimeout == 0 {
		c.Engine.NavigateTimeout = 15 * time.Second
	}
	if c.Engine.PollInterval == 0 {
		c.Engine.PollInterval = 500 * time.Millisecond
	}
	if c.Engine.TaskDeadline == 0 {
		c.Engine.TaskDeadline = time.Hour
	}
	if c.Engine.RetryBudget == 0 {
		c.Engine.RetryBudget = 3
	}

	if c.Decision.Provider == "" {
		c.Decision.Provider = "rules"
	}
	if c.Decision.APIKeyEnv == "" {
		c.Decision.APIKeyEnv = "WEBPILOT_API_KEY"
	}
	if c.Decision.Timeout == 0 {
		c.Decision.Timeout = 60 * time.Second
	}
	if c.Decision.RequestsPerMin == 0 {
		c.Decision.RequestsPerMin = 30
	}
	if c.Decision.BurstSize == 0 {
		c.Decision.BurstSize = 5
	}
	if c.Decision.Breaker.MaxFailures == 0 {
		c.Decision.Breaker.MaxFailures = 5
	}
	if c.Decision.Breaker.Timeout == 0 {
		c.Decision.Breaker.Timeout = 30 * time.Second
	}
	if c.Decision.Breaker.Interval == 0 {
		c.Decision.Breaker.Interval = 60 * time.Second
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Logger.Output == "" {
		c.Logger.Output = "stderr"
	}

	if c.History.Path == "" {
		c.History.Path = "webpilot-history.db"
	}
}
