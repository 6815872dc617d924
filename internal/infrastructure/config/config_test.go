package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	// Browser config
	assert.Equal(t, 9222, cfg.Browser.DebugPort)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 512, cfg.Browser.MaxHeapMB)

	// Pages config
	assert.Equal(t, 120000, cfg.Pages.TimeoutMS)
	assert.Equal(t, 2*time.Minute, cfg.Pages.MaxAge())

	// Tunnel config
	assert.Equal(t, ModeRelay, cfg.Tunnel.Mode)
	assert.Equal(t, "wss", cfg.Tunnel.Scheme)

	// Default lacks a tunnel host
	assert.Error(t, cfg.Validate())
}

func TestLoadRequiresTunnelHost(t *testing.T) {
	t.Setenv("TUNNEL_HOST", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"TUNNEL_HOST":       "browser.example.com",
		"TUNNEL_SCHEME":     "ws",
		"PORT":              "8080",
		"HOST":              "127.0.0.1",
		"DEBUG_PORT":        "9333",
		"HEADLESS":          "false",
		"MAX_HEAP_MB":       "1024",
		"PAGE_TIMEOUT_MS":   "60000",
		"LAUNCH_TIMEOUT":    "5s",
		"LOG_LEVEL":         "debug",
		"LOG_DEV":           "true",
		"RATE_LIMIT_RPS":    "50",
		"RELAY_CLOSE_GRACE": "500ms",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "browser.example.com", cfg.Tunnel.Host)
	assert.Equal(t, "ws", cfg.Tunnel.Scheme)
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, 9333, cfg.Browser.DebugPort)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1024, cfg.Browser.MaxHeapMB)
	assert.Equal(t, time.Minute, cfg.Pages.MaxAge())
	assert.Equal(t, 5*time.Second, cfg.Browser.LaunchTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 50, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 500*time.Millisecond, cfg.Relay.CloseGrace)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	t.Setenv("TUNNEL_HOST", "tunnel.example.com")
	t.Setenv("PAGE_TIMEOUT_MS", "30000")

	cfg, err := Load()
	require.NoError(t, err)

	// Overridden values
	assert.Equal(t, 30*time.Second, cfg.Pages.MaxAge())

	// Defaults still apply
	assert.Equal(t, 9222, cfg.Browser.DebugPort)
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, ModeRelay, cfg.Tunnel.Mode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid relay mode",
			mutate: func(c *Config) {},
		},
		{
			name:    "bad scheme",
			mutate:  func(c *Config) { c.Tunnel.Scheme = "https" },
			wantErr: "TUNNEL_SCHEME",
		},
		{
			name:    "direct mode without browser host",
			mutate:  func(c *Config) { c.Tunnel.Mode = ModeDirect },
			wantErr: "BROWSER_TUNNEL_HOST",
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Tunnel.Mode = "mirror" },
			wantErr: "ENDPOINT_MODE",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Browser.DebugPort = 70000 },
			wantErr: "DEBUG_PORT",
		},
		{
			name:    "non-positive page timeout",
			mutate:  func(c *Config) { c.Pages.TimeoutMS = 0 },
			wantErr: "PAGE_TIMEOUT_MS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Tunnel.Host = "tunnel.example.com"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPublicHost(t *testing.T) {
	cfg := Default()
	cfg.Tunnel.Host = "gateway.example.com"
	cfg.Tunnel.BrowserHost = "chrome.example.com"

	assert.Equal(t, "gateway.example.com", cfg.PublicHost())

	cfg.Tunnel.Mode = ModeDirect
	assert.Equal(t, "chrome.example.com", cfg.PublicHost())
}
