// Package store provides persistent storage for hivewatch events using SQLite.
//
// # Architecture
//
// EventStore is the storage interface; SQLiteStore implements it on a single
// events table. Events are append-only and keyed by the producer-assigned
// event id, so retried writes are idempotent:
//
//	inserted, err := st.Insert(ctx, ev)
//
// Insert reports whether the row was newly written. Callers use this to
// decide whether an event should be broadcast to live consumers.
//
// # Queries
//
// Query supports filtering and windowing via QueryParams:
//
//   - SessionID: restrict to one session
//   - Type: restrict to one event type
//   - FromTimestamp: events at or after a timestamp
//   - Limit/Offset: paging (default 100, capped at 1000)
//   - Latest: select the newest N matching events, still returned in
//     ascending order so consumers can fold them directly
//
// Sessions aggregates the table into per-session summaries ordered by most
// recent activity.
//
// # Durability
//
// The database is opened with WAL journaling and the schema is created on
// open, so a fresh path is usable immediately.
package store
