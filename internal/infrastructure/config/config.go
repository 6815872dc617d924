package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Endpoint rewrite modes.
const (
	// ModeRelay points clients at this service's own tunnel host; the relay
	// bridges them to the browser.
	ModeRelay = "relay"
	// ModeDirect points clients at a tunnel host that reaches the browser's
	// debug port without going through the relay.
	ModeDirect = "direct"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Tunnel      TunnelConfig
	Browser     BrowserConfig
	Pages       PagesConfig
	Relay       RelayConfig
	Diagnostics DiagnosticsConfig
	Logging     LogConfig
	RateLimit   RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"3000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	MaxConnections  int           `envconfig:"MAX_CONNECTIONS" default:"256"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// TunnelConfig describes how the service is reached from outside.
type TunnelConfig struct {
	Host        string `envconfig:"TUNNEL_HOST"`
	Scheme      string `envconfig:"TUNNEL_SCHEME" default:"wss"`
	Mode        string `envconfig:"ENDPOINT_MODE" default:"relay"`
	BrowserHost string `envconfig:"BROWSER_TUNNEL_HOST"`
}

// BrowserConfig holds browser process configuration.
type BrowserConfig struct {
	Bin              string        `envconfig:"BROWSER_BIN"`
	DebugPort        int           `envconfig:"DEBUG_PORT" default:"9222"`
	Headless         bool          `envconfig:"HEADLESS" default:"true"`
	Leakless         bool          `envconfig:"BROWSER_LEAKLESS" default:"true"`
	LaunchOnStart    bool          `envconfig:"BROWSER_LAUNCH_ON_START" default:"false"`
	MaxHeapMB        int           `envconfig:"MAX_HEAP_MB" default:"512"`
	LaunchTimeout    time.Duration `envconfig:"LAUNCH_TIMEOUT" default:"30s"`
	FailureThreshold int           `envconfig:"LAUNCH_FAILURE_THRESHOLD" default:"3"`
	Cooldown         time.Duration `envconfig:"LAUNCH_COOLDOWN" default:"10s"`
}

// PagesConfig holds page lifetime configuration.
type PagesConfig struct {
	TimeoutMS int `envconfig:"PAGE_TIMEOUT_MS" default:"120000"`
}

// MaxAge returns the configured page lifetime.
func (p PagesConfig) MaxAge() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// RelayConfig holds WebSocket relay configuration.
type RelayConfig struct {
	HandshakeTimeout time.Duration `envconfig:"RELAY_HANDSHAKE_TIMEOUT" default:"10s"`
	CloseGrace       time.Duration `envconfig:"RELAY_CLOSE_GRACE" default:"2s"`
}

// DiagnosticsConfig controls the CDP diagnostics tap.
type DiagnosticsConfig struct {
	Enabled    bool `envconfig:"DIAGNOSTICS_ENABLED" default:"true"`
	Network    bool `envconfig:"DIAGNOSTICS_NETWORK" default:"false"`
	MaxTextLen int  `envconfig:"DIAGNOSTICS_MAX_TEXT" default:"512"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration for endpoint requests.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"10"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"20"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads environment variables without validating, so callers can
// apply overrides first.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Default returns default configuration. TunnelHost is left empty and must
// be supplied before the config validates.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "3000",
			Host:            "0.0.0.0",
			MaxConnections:  256,
			ShutdownTimeout: 10 * time.Second,
		},
		Tunnel: TunnelConfig{
			Scheme: "wss",
			Mode:   ModeRelay,
		},
		Browser: BrowserConfig{
			DebugPort:        9222,
			Headless:         true,
			Leakless:         true,
			MaxHeapMB:        512,
			LaunchTimeout:    30 * time.Second,
			FailureThreshold: 3,
			Cooldown:         10 * time.Second,
		},
		Pages: PagesConfig{
			TimeoutMS: 120000,
		},
		Relay: RelayConfig{
			HandshakeTimeout: 10 * time.Second,
			CloseGrace:       2 * time.Second,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled:    true,
			MaxTextLen: 512,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
			Enabled:           true,
		},
	}
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Tunnel.Host) == "" {
		errs = append(errs, errors.New("TUNNEL_HOST is required"))
	}
	switch c.Tunnel.Scheme {
	case "ws", "wss":
	default:
		errs = append(errs, fmt.Errorf("TUNNEL_SCHEME must be ws or wss, got %q", c.Tunnel.Scheme))
	}
	switch c.Tunnel.Mode {
	case ModeRelay:
	case ModeDirect:
		if c.Tunnel.BrowserHost == "" {
			errs = append(errs, errors.New("BROWSER_TUNNEL_HOST is required in direct mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("ENDPOINT_MODE must be %q or %q, got %q", ModeRelay, ModeDirect, c.Tunnel.Mode))
	}
	if c.Browser.DebugPort <= 0 || c.Browser.DebugPort > 65535 {
		errs = append(errs, fmt.Errorf("DEBUG_PORT out of range: %d", c.Browser.DebugPort))
	}
	if c.Pages.TimeoutMS <= 0 {
		errs = append(errs, fmt.Errorf("PAGE_TIMEOUT_MS must be positive, got %d", c.Pages.TimeoutMS))
	}
	if c.Browser.MaxHeapMB < 0 {
		errs = append(errs, fmt.Errorf("MAX_HEAP_MB must not be negative, got %d", c.Browser.MaxHeapMB))
	}

	return errors.Join(errs...)
}

// PublicHost returns the host clients should use for control endpoints.
func (c *Config) PublicHost() string {
	if c.Tunnel.Mode == ModeDirect {
		return c.Tunnel.BrowserHost
	}
	return c.Tunnel.Host
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}
