// Package server exposes the hivewatch HTTP API and websocket endpoint.
//
// Routes:
//
//   - POST /events: validate and persist a producer event; broadcasts to
//     live consumers only on first insertion
//   - GET /events: query stored events with filtering and paging
//   - GET /events/:id: fetch one event
//   - GET /sessions: per-session summaries
//   - GET /health: liveness plus event and consumer counts
//   - GET /ws: upgrade to the consumer websocket protocol
//
// The server is an echo application; Handler exposes it for tests and Start
// and Shutdown manage its lifecycle.
package server
