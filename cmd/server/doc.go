// Package main is the entry point for cdpgate.
//
// cdpgate keeps one headless browser available behind a public tunnel.
// Clients ask GET /cdp for a WebSocket endpoint, then speak the Chrome
// DevTools Protocol through the relay on /devtools/*.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Relay mode behind a tunnel
//	TUNNEL_HOST=abc.trycloudflare.com ./cdpgate
//
//	# Direct mode, development logging
//	./cdpgate --tunnel-host gw.example.com --mode direct \
//	    --browser-tunnel-host chrome.example.com --dev
//
//	# Validate configuration only
//	./cdpgate check-config --tunnel-host gw.example.com
package main
