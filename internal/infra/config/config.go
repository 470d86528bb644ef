package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Engine      EngineConfig      `yaml:"engine"`
	LLM         LLMConfig         `yaml:"llm"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Store       StoreConfig       `yaml:"store"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	MCP         MCPConfig         `yaml:"mcp"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Logger      LoggerConfig      `yaml:"logger"`
	Tracer      TracerConfig      `yaml:"tracer"`
}

// EngineConfig holds orchestration budgets and model-call timeouts.
type EngineConfig struct {
	MaxIterations     int `yaml:"max_iterations"`      // general loop iteration ceiling
	MaxToolCalls      int `yaml:"max_tool_calls"`      // general loop tool-call ceiling
	MaxCreatedObjects int `yaml:"max_created_objects"` // general loop creation ceiling
	MaxDetailObjects  int `yaml:"max_detail_objects"`  // digest detail cap

	LoopCallTimeout  time.Duration `yaml:"loop_call_timeout"`
	PlannerTimeout   time.Duration `yaml:"planner_timeout"`
	ContentTimeout   time.Duration `yaml:"content_timeout"`   // template content generation
	ExtractorTimeout time.Duration `yaml:"extractor_timeout"` // fast-path AI extractor

	// ExtractorEnabled turns on the single-model-call fast-path extractor.
	// Pattern matching always runs first regardless.
	ExtractorEnabled    bool    `yaml:"extractor_enabled"`
	PlannerTemperature  float64 `yaml:"planner_temperature"`
	ExtractorConfidence float64 `yaml:"extractor_confidence"` // minimum to accept, default 0.8
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	// Tiers maps a model tier to a registry key, e.g.
	// "fast" → "openai/gpt-4o-mini", "strong" → "anthropic/claude-sonnet-4".
	Tiers map[string]string `yaml:"tiers"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // "openai", "anthropic", "bedrock"
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"` // bedrock only
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// FailoverConfig holds model failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RateLimitConfig holds the per-user command rate limiter settings.
type RateLimitConfig struct {
	MaxCommands int           `yaml:"max_commands"`
	Window      time.Duration `yaml:"window"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Path string `yaml:"path"` // SQLite database file
}

// GatewayConfig holds HTTP gateway settings.
type GatewayConfig struct {
	Enabled bool       `yaml:"enabled"`
	Addr    string     `yaml:"addr"`
	Auth    AuthConfig `yaml:"auth"`
	// Per-client request rate limiting (requests/second + burst).
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Type   string        `yaml:"type"` // "static" or ""
	Tokens []TokenConfig `yaml:"tokens,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string `yaml:"token"`
	Name  string `yaml:"name"`
}

// MCPConfig holds MCP server settings.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MaintenanceConfig holds background sweep settings.
type MaintenanceConfig struct {
	Enabled       bool          `yaml:"enabled"`
	SweepSchedule string        `yaml:"sweep_schedule"` // cron spec, e.g. "@every 5m"
	StaleJobAge   time.Duration `yaml:"stale_job_age"`  // pending jobs older than this fail
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// defaultDataDir returns the persistent data directory under
// $HOME/.boardpilot/data. Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".boardpilot", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxIterations:       6,
			MaxToolCalls:        50,
			MaxCreatedObjects:   120,
			MaxDetailObjects:    40,
			LoopCallTimeout:     30 * time.Second,
			PlannerTimeout:      40 * time.Second,
			ContentTimeout:      15 * time.Second,
			ExtractorTimeout:    5 * time.Second,
			ExtractorEnabled:    false,
			PlannerTemperature:  0.2,
			ExtractorConfidence: 0.8,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		RateLimit: RateLimitConfig{
			MaxCommands: 20,
			Window:      time.Minute,
		},
		Store: StoreConfig{
			Path: filepath.Join(defaultDataDir(), "boardpilot.db"),
		},
		Gateway: GatewayConfig{
			Enabled:        false,
			Addr:           ":8090",
			RateLimitRPS:   5,
			RateLimitBurst: 10,
		},
		MCP: MCPConfig{Enabled: false},
		Maintenance: MaintenanceConfig{
			Enabled:       true,
			SweepSchedule: "@every 5m",
			StaleJobAge:   time.Hour,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts
// secrets. A missing file is not an error: defaults + env are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	passphrase := os.Getenv("BOARDPILOT_CONFIG_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps BOARDPILOT_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BOARDPILOT_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv("BOARDPILOT_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("BOARDPILOT_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("BOARDPILOT_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("BOARDPILOT_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("BOARDPILOT_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("BOARDPILOT_GATEWAY_ENABLED"); v == "true" {
		cfg.Gateway.Enabled = true
	}
	if v := os.Getenv("BOARDPILOT_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("BOARDPILOT_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Type = "static"
		cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens,
			TokenConfig{Token: v, Name: "env"})
	}
	if v := os.Getenv("BOARDPILOT_MCP_ENABLED"); v == "true" {
		cfg.MCP.Enabled = true
	}
	if v := os.Getenv("BOARDPILOT_ENGINE_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.MaxIterations = n
		}
	}
	if v := os.Getenv("BOARDPILOT_ENGINE_MAX_TOOL_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.MaxToolCalls = n
		}
	}
	if v := os.Getenv("BOARDPILOT_ENGINE_EXTRACTOR_ENABLED"); v == "true" {
		cfg.Engine.ExtractorEnabled = true
	}
	if v := os.Getenv("BOARDPILOT_RATE_LIMIT_MAX_COMMANDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimit.MaxCommands = n
		}
	}
	if v := os.Getenv("BOARDPILOT_RATE_LIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RateLimit.Window = d
		}
	}
	for _, p := range []struct{ env, name string }{
		{"BOARDPILOT_OPENAI_API_KEY", "openai"},
		{"BOARDPILOT_ANTHROPIC_API_KEY", "anthropic"},
	} {
		if v := os.Getenv(p.env); v != "" {
			for i := range cfg.LLM.Providers {
				if cfg.LLM.Providers[i].Name == p.name && cfg.LLM.Providers[i].APIKey == "" {
					cfg.LLM.Providers[i].APIKey = v
				}
			}
		}
	}
}

// Validate checks the configuration for inconsistencies that would only
// surface later at runtime.
func Validate(cfg *Config) error {
	seen := map[string]bool{}
	for _, p := range cfg.LLM.Providers {
		if p.Name == "" {
			return fmt.Errorf("llm provider with empty name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate llm provider %q", p.Name)
		}
		seen[p.Name] = true
		switch p.Type {
		case "openai", "anthropic", "bedrock", "":
		default:
			return fmt.Errorf("llm provider %q has unknown type %q", p.Name, p.Type)
		}
	}
	for tier, key := range cfg.LLM.Tiers {
		if tier != "fast" && tier != "strong" {
			return fmt.Errorf("unknown model tier %q", tier)
		}
		if !strings.Contains(key, "/") {
			return fmt.Errorf("tier %q must reference provider/model, got %q", tier, key)
		}
	}
	if cfg.Engine.MaxIterations <= 0 || cfg.Engine.MaxToolCalls <= 0 {
		return fmt.Errorf("engine budgets must be positive")
	}
	if cfg.Engine.ExtractorConfidence < 0 || cfg.Engine.ExtractorConfidence > 1 {
		return fmt.Errorf("extractor_confidence must be in [0,1]")
	}
	if cfg.RateLimit.MaxCommands <= 0 || cfg.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit must have positive max_commands and window")
	}
	if cfg.Gateway.Enabled && cfg.Gateway.Addr == "" {
		return fmt.Errorf("gateway enabled but addr is empty")
	}
	return nil
}

// decryptSecrets finds "enc:..." values in provider API keys and gateway
// tokens and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if strings.HasPrefix(key, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(key, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
			}
			cfg.LLM.Providers[i].APIKey = decrypted
		}
	}
	for i := range cfg.Gateway.Auth.Tokens {
		tok := cfg.Gateway.Auth.Tokens[i].Token
		if strings.HasPrefix(tok, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(tok, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("gateway auth token %s: %w", cfg.Gateway.Auth.Tokens[i].Name, err)
			}
			cfg.Gateway.Auth.Tokens[i].Token = decrypted
		}
	}
	return nil
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
