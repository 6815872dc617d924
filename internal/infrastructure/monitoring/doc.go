/*
Package monitoring provides Prometheus metrics for the gateway.

# Overview

Metrics live on a private registry owned by Metrics, so the process-wide
default registry is never touched and tests can build as many collectors as
they need. All Record, Set and Inc helpers accept a nil receiver.

# Families

  - HTTP: request counts and latency per route template
  - Browser: connected gauge, launches by result, launch latency, disconnects
  - Pages: tracked timers, reaped pages, failed closes
  - Relay: active sessions, sessions by outcome, frames and bytes per direction
  - Diagnostics: observed CDP events and contained failures

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
