// Package config provides 12-factor configuration management for the gateway.
//
// Configuration is loaded from environment variables with defaults. CLI flags
// in cmd/server override individual values after loading.
//
// Configuration Sections:
//   - Server: HTTP listener and shutdown bound
//   - Tunnel: external hostname, scheme and endpoint rewrite mode
//   - Browser: binary, debug port, heap cap, launch bounds and breaker
//   - Pages: maximum page age
//   - Relay: WebSocket handshake and close grace periods
//   - Diagnostics: CDP event tap switches
//   - Logging, RateLimit
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(cfg.Addr())
package config
