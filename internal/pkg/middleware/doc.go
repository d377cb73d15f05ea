// Package middleware provides HTTP middleware components for the evaluation server.
//
// Available middleware:
//   - RateLimiter: per-client rate limiting using a token bucket
//   - CORS: configurable cross-origin headers with preflight handling
//   - APIKey: shared-key authentication via the X-API-Key header
//   - Logging: debug-level request logging
//   - Metrics: request counting and latency recording
//
// Usage:
//
//	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
//	handler = middleware.Chain(mux, middleware.CORS(nil), rl.Middleware)
package middleware
