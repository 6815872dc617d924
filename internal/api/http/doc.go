// Package http serves the gateway's JSON routes: the service descriptor,
// health, and the control endpoint hand-out at /cdp.
package http
