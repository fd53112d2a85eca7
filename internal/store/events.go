// ABOUTME: Event log operations: idempotent insert, lookup, filtered queries
// ABOUTME: Implements latest-N-ascending selection and per-session summaries

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hivewatch/hivewatch/internal/event"
)

// Insert appends an event to the log. The producer-generated id is the
// idempotency key: a second insert with the same id leaves the original row
// untouched and returns false without error, so producer retries are harmless.
func (s *SQLiteStore) Insert(ctx context.Context, ev *event.Event) (bool, error) {
	payload := ev.Raw
	if len(payload) == 0 {
		var err error
		payload, err = json.Marshal(ev)
		if err != nil {
			return false, fmt.Errorf("encoding event payload: %w", err)
		}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (id, type, timestamp, session_id, payload)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), ev.Timestamp, ev.SessionID, string(payload),
	)
	if err != nil {
		return false, fmt.Errorf("inserting event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking insert result: %w", err)
	}
	if n == 0 {
		s.logger.Debug("duplicate event ignored", "event_id", ev.ID)
		return false, nil
	}

	s.logger.Debug("event stored",
		"event_id", ev.ID,
		"type", ev.Type,
		"session_id", ev.SessionID,
	)
	return true, nil
}

// GetByID returns the stored event with the given id, or ErrEventNotFound.
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*event.Event, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM events WHERE id = ?`, id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying event %s: %w", id, err)
	}
	return decodeEvent(payload)
}

// Query returns events matching the filters, ascending by timestamp. Rowid
// breaks timestamp ties so ordering is stable for events logged in the same
// instant.
func (s *SQLiteStore) Query(ctx context.Context, params QueryParams) ([]*event.Event, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	var conditions []string
	var args []any
	if params.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, params.SessionID)
	}
	if params.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, params.Type)
	}
	if params.FromTimestamp != "" {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, params.FromTimestamp)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var query string
	if params.Latest {
		// Newest N matching rows, presented chronologically: select
		// descending, then flip the window back to ascending order.
		query = fmt.Sprintf(`
			SELECT payload FROM (
				SELECT rowid AS rid, payload, timestamp FROM events
				%s
				ORDER BY timestamp DESC, rid DESC
				LIMIT ? OFFSET ?
			)
			ORDER BY timestamp ASC, rid ASC`, where)
	} else {
		query = fmt.Sprintf(`
			SELECT payload FROM events
			%s
			ORDER BY timestamp ASC, rowid ASC
			LIMIT ? OFFSET ?`, where)
	}
	args = append(args, limit, params.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*event.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		ev, err := decodeEvent(payload)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return events, nil
}

// Sessions summarizes the log per session, most recently active first.
func (s *SQLiteStore) Sessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, COUNT(*), MIN(timestamp), MAX(timestamp)
		FROM events
		GROUP BY session_id
		ORDER BY MAX(timestamp) DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		if err := rows.Scan(&sum.SessionID, &sum.EventCount, &sum.FirstEvent, &sum.LastEvent); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return sessions, nil
}

// Count returns the total number of stored events.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return n, nil
}

// decodeEvent rebuilds a typed event from its stored payload, keeping the
// original bytes so unknown producer fields survive the round trip.
func decodeEvent(payload string) (*event.Event, error) {
	var ev event.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return nil, fmt.Errorf("decoding stored event: %w", err)
	}
	ev.Raw = json.RawMessage(payload)
	return &ev, nil
}
