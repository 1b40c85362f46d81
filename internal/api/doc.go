// Package api implements the HTTP API and WebSocket stream for fanbridge.
//
// This package provides:
//   - The dashboard endpoints (/api/fanData, /api/changeThreshold,
//     /api/toggleFan, /api/statusHistory)
//   - A WebSocket hub that pushes every fan state change to connected clients
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support
//
// # Listeners
//
// The same router is served on api.port (live state and commands) and on
// api.history_port (history view), so either port answers every route.
// Setting history_port to 0 disables the second listener.
//
// # Graceful Degradation
//
// The server operates without a broker connection: reads, history and the
// WebSocket stream keep working, only commands fail with 500.
package api
