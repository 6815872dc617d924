// Package middleware provides the gateway's gin middleware.
//
//   - CORS: permissive read-only cross-origin access
//   - RateLimit: per-IP token bucket, applied to /cdp
//   - UpgradeGate: drops WebSocket upgrades outside /devtools/
//
// Example Usage:
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.UpgradeGate("/devtools/", logger))
//	router.GET("/cdp", middleware.RateLimit(middleware.DefaultRateLimitConfig()), handler)
package middleware
