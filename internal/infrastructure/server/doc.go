// Package server wires the gateway together: browser supervisor, page
// monitor, diagnostics tap, relay and the gin router in front of them.
//
// Routes:
//
//	GET /            service descriptor
//	GET /health      browser and relay state
//	GET /cdp         launch if needed, return the public control endpoint
//	GET /metrics     Prometheus exposition
//	GET /devtools/*  WebSocket relay to the browser
//
// Upgrade requests on any other path are dropped without a handshake.
package server
