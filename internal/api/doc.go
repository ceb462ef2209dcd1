// Package api implements the HTTP REST API and WebSocket server for plugd.
//
// This package provides:
//   - Legacy routes (/turnOn, /turnOff, /status) with the success envelope the
//     web page expects
//   - Versioned routes under /api/v1 for status, power, toggle and history
//   - WebSocket feed: a power snapshot on connect, then one
//     plug.state_changed event per operation
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - Prometheus exposition on /metrics
//   - TLS support for production deployments
//
// # Architecture
//
// Handlers call the plug gateway directly. Every gateway operation is also
// passed to the hub, which implements plug.Recorder, so WebSocket clients see
// power changes made through MQTT as well as through HTTP.
//
// # Graceful Degradation
//
// GET /status never fails: when the controller cannot be reached the cached
// or identity-only status is returned and the method field says so. Power
// changes are reported as failures instead, because guessing their outcome
// would mislead the caller.
//
// The server operates without MQTT or the history database; the affected
// routes answer 503 and the health endpoint reports the component.
package api
