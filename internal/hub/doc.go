// Package hub fans validated events out to websocket consumers.
//
// # Broadcaster
//
// The Broadcaster holds per-subscriber buffered channels. Publish never
// blocks: a subscriber that falls behind has events dropped rather than
// stalling the ingest path.
//
// # Gateway
//
// The Gateway upgrades HTTP requests and speaks a small JSON protocol:
//
//   - connected: sent once after upgrade with the connection's session id
//   - subscribe: consumer requests recent history (optionally filtered by
//     session), answered with a history message before live events flow
//   - replay: consumer requests events from a timestamp, answered with a
//     history message
//   - event: one live event, pushed as it is ingested
//
// Each connection has a single writer goroutine; all frames, including pings,
// go through it. Malformed or unknown client messages are ignored so one
// confused consumer cannot tear down its connection with a bad frame.
package hub
