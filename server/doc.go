// Package server provides the HTTP server that hosts event streams: a Gin
// engine on a ServeMux, served over HTTP/1.1 and h2c, with lifecycle
// management through the component package.
//
// Stop cancels the base context of every request before shutting down, so
// producer streams end promptly instead of running into the shutdown
// deadline.
//
// # Middleware
//
// Server-level middleware (server/middleware) wraps every route:
//
//   - Recovery: panic recovery with structured logging
//   - RequestID: X-Request-Id generation and propagation
//   - CORS: cross-origin headers for browser EventSource clients
//   - RequestLogger: one log line per request or finished stream
//
// # Endpoints
//
// Built-in endpoints (server/endpoint):
//
//   - /health: component health aggregation
//   - /alive: liveness probe
//   - /ready: readiness probe
//   - /info: service name, version and uptime
package server
