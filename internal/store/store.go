// ABOUTME: Store interface for the append-only event log
// ABOUTME: Defines query parameters, session summaries, and the not-found sentinel

package store

import (
	"context"
	"errors"

	"github.com/hivewatch/hivewatch/internal/event"
)

// ErrEventNotFound is returned when a requested event does not exist.
var ErrEventNotFound = errors.New("event not found")

const (
	// DefaultQueryLimit applies when a caller does not specify a limit.
	DefaultQueryLimit = 100
	// MaxQueryLimit caps every query regardless of what the caller asks for.
	MaxQueryLimit = 1000
)

// QueryParams selects events from the log. All filters are optional.
type QueryParams struct {
	SessionID     string // only events owned by this session
	Type          string // only events of this type
	FromTimestamp string // only events at or after this RFC3339 timestamp
	Limit         int    // defaults to DefaultQueryLimit, capped at MaxQueryLimit
	Offset        int
	// Latest flips selection semantics: take the newest Limit rows matching
	// the filters, then return them in ascending order. Subscribe-time
	// backfill wants "the most recent N, presented chronologically"; a plain
	// ascending scan would return the oldest N instead.
	Latest bool
}

// SessionSummary aggregates the events of one session.
type SessionSummary struct {
	SessionID  string `json:"session_id"`
	EventCount int    `json:"event_count"`
	FirstEvent string `json:"first_event"`
	LastEvent  string `json:"last_event"`
}

// EventStore is the durable, queryable log of immutable events.
type EventStore interface {
	// Insert appends an event. A duplicate id is a silent no-op; the bool
	// reports whether the row was newly inserted.
	Insert(ctx context.Context, ev *event.Event) (bool, error)
	// GetByID returns the event with the given id, or ErrEventNotFound.
	GetByID(ctx context.Context, id string) (*event.Event, error)
	// Query returns matching events ordered ascending by timestamp.
	Query(ctx context.Context, params QueryParams) ([]*event.Event, error)
	// Sessions returns per-session summaries ordered by last event descending.
	Sessions(ctx context.Context) ([]SessionSummary, error)
	// Count returns the total number of stored events.
	Count(ctx context.Context) (int, error)
	Close() error
}
