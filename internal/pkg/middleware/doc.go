// Package middleware provides HTTP middleware components for the quickquery
// server.
//
// Available middleware:
//   - RateLimiter: Per-client rate limiting using token bucket algorithm
//   - RequestID: Request ID propagation into the logger context
//   - Logging: One log line per request
//   - CORS: Cross-origin headers
//
// Usage:
//
//	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
//	defer rl.Close()
//	handler = middleware.Chain(mux, middleware.RequestID, middleware.Logging(log), rl.Middleware)
package middleware
