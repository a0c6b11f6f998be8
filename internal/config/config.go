// ABOUTME: Configuration loading and parsing for dexi-gateway
// ABOUTME: Supports YAML files with environment variable expansion, overrides and duration parsing

package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389/dexi-gateway/internal/auth"
	"github.com/2389/dexi-gateway/internal/engine"
)

// Config represents the complete dexi-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Stream    StreamConfig    `yaml:"stream"`
	Perf      PerfConfig      `yaml:"perf"`
	Engine    EngineConfig    `yaml:"engine"`
	Prompts   PromptsConfig   `yaml:"prompts"`
	Tools     ToolsConfig     `yaml:"tools"`
	Audit     AuditConfig     `yaml:"audit"`
	Mode      ModeConfig      `yaml:"mode"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr       string   `yaml:"http_addr"`
	BodyLimitBytes int64    `yaml:"body_limit_bytes"`
	CORSOrigins    []string `yaml:"cors_origins"`

	ShutdownTimeout    time.Duration `yaml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	DevMode            bool                `yaml:"dev_mode"`
	DevUser            string              `yaml:"dev_user"`
	DevRole            string              `yaml:"dev_role"`
	JWTSecret          string              `yaml:"jwt_secret"`
	Issuer             string              `yaml:"issuer"`
	Audience           string              `yaml:"audience"`
	JWKSURI            string              `yaml:"jwks_uri"`
	Issuers            []auth.IssuerConfig `yaml:"issuers"`
	IssuersPath        string              `yaml:"issuers_path"`
	DefaultApplication string              `yaml:"default_application"`
}

// RateLimitConfig holds per-client request limits
type RateLimitConfig struct {
	// Max requests per window per client. Zero disables limiting.
	Max int `yaml:"max"`

	Window    time.Duration `yaml:"-"`
	WindowRaw string        `yaml:"window"`
}

// StreamConfig holds SSE stream configuration
type StreamConfig struct {
	HeartbeatInterval    time.Duration `yaml:"-"`
	HeartbeatIntervalRaw string        `yaml:"heartbeat_interval"`
}

// PerfConfig holds latency targets per performance mode
type PerfConfig struct {
	Fast     time.Duration `yaml:"-"`
	Balanced time.Duration `yaml:"-"`
	Deep     time.Duration `yaml:"-"`

	FastRaw     string `yaml:"fast"`
	BalancedRaw string `yaml:"balanced"`
	DeepRaw     string `yaml:"deep"`
}

// EngineConfig selects and configures the agent engine
type EngineConfig struct {
	// Backend is stub or openai. Empty picks openai when an API key is set.
	Backend  string `yaml:"backend"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	MaxTurns int    `yaml:"max_turns"`
}

// PromptsConfig holds prompt template configuration
type PromptsConfig struct {
	Dir       string `yaml:"dir"`
	HotReload bool   `yaml:"hot_reload"`
}

// ToolsConfig holds data sources for the built-in tools
type ToolsConfig struct {
	DocsDir      string `yaml:"docs_dir"`
	UIRoutesPath string `yaml:"ui_routes_path"`
}

// AuditConfig selects the audit sink
type AuditConfig struct {
	// Driver is sqlite, postgres or log.
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite and a connection string for postgres.
	DSN string `yaml:"dsn"`
}

// ModeConfig holds the execution classifier word lists. Nil lists use defaults.
type ModeConfig struct {
	Keywords  []string `yaml:"keywords"`
	ToolHints []string `yaml:"tool_hints"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TelemetryConfig holds tracing configuration
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:           ":3000",
			BodyLimitBytes:     1 << 20,
			ShutdownTimeoutRaw: "10s",
		},
		Auth: AuthConfig{
			DevUser:            "dev-user",
			DevRole:            "admin",
			DefaultApplication: "nexus",
		},
		RateLimit: RateLimitConfig{Max: 120, WindowRaw: "1m"},
		Stream:    StreamConfig{HeartbeatIntervalRaw: "2s"},
		Perf:      PerfConfig{FastRaw: "500ms", BalancedRaw: "2s", DeepRaw: "10s"},
		Engine:    EngineConfig{MaxTurns: engine.DefaultMaxTurns},
		Prompts:   PromptsConfig{Dir: "prompts"},
		Tools:     ToolsConfig{DocsDir: "docs", UIRoutesPath: "config/ui-routes.yaml"},
		Audit:     AuditConfig{Driver: "sqlite", DSN: "data/audit.db"},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Metrics:   MetricsConfig{Enabled: true, Path: "/metrics"},
		Telemetry: TelemetryConfig{ServiceName: "dexi-gateway"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// An empty path yields the defaults. Values in the file are layered over the
// defaults, then environment overrides are applied.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		// Expand environment variables in the raw YAML content
		expandedData := expandEnvVars(string(data))

		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnv layers the well-known environment variables over cfg.
func applyEnv(cfg *Config) error {
	if os.Getenv("DEXI_DEV_AUTH") == "1" {
		cfg.Auth.DevMode = true
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("DEXI_ISSUERS_JSON"); v != "" {
		issuers, err := auth.ParseIssuersJSON([]byte(v))
		if err != nil {
			return fmt.Errorf("DEXI_ISSUERS_JSON: %w", err)
		}
		cfg.Auth.Issuers = issuers
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Engine.APIKey = v
	}
	if v := os.Getenv("PORT"); v != "" {
		host, _, err := net.SplitHostPort(cfg.Server.HTTPAddr)
		if err != nil {
			host = ""
		}
		cfg.Server.HTTPAddr = net.JoinHostPort(host, v)
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Server.BodyLimitBytes < 0 {
		return fmt.Errorf("server.body_limit_bytes must not be negative")
	}

	if c.RateLimit.Max < 0 {
		return fmt.Errorf("rate_limit.max must not be negative")
	}
	if c.RateLimit.Max > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window is required when rate_limit.max is set")
	}

	switch c.Engine.Backend {
	case "", "stub":
	case "openai":
		if c.Engine.APIKey == "" {
			return fmt.Errorf("engine.api_key is required for the openai backend")
		}
	default:
		return fmt.Errorf("engine.backend must be stub or openai, got %q", c.Engine.Backend)
	}
	if c.Engine.MaxTurns < 0 {
		return fmt.Errorf("engine.max_turns must not be negative")
	}

	switch c.Audit.Driver {
	case "log":
	case "sqlite", "postgres":
		if c.Audit.DSN == "" {
			return fmt.Errorf("audit.dsn is required for the %s driver", c.Audit.Driver)
		}
	default:
		return fmt.Errorf("audit.driver must be sqlite, postgres or log, got %q", c.Audit.Driver)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is enabled")
	}

	for i, iss := range c.Auth.Issuers {
		if err := iss.Validate(); err != nil {
			return fmt.Errorf("auth.issuers[%d]: %w", i, err)
		}
	}

	return nil
}

// EngineBackend resolves the engine to run: an explicit backend wins, otherwise
// openai when an API key is configured and stub when not.
func (c *Config) EngineBackend() string {
	if c.Engine.Backend != "" {
		return c.Engine.Backend
	}
	if c.Engine.APIKey != "" {
		return "openai"
	}
	return "stub"
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dest *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"rate_limit.window", cfg.RateLimit.WindowRaw, &cfg.RateLimit.Window},
		{"stream.heartbeat_interval", cfg.Stream.HeartbeatIntervalRaw, &cfg.Stream.HeartbeatInterval},
		{"perf.fast", cfg.Perf.FastRaw, &cfg.Perf.Fast},
		{"perf.balanced", cfg.Perf.BalancedRaw, &cfg.Perf.Balanced},
		{"perf.deep", cfg.Perf.DeepRaw, &cfg.Perf.Deep},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dest = d
	}

	return nil
}
