// ABOUTME: Structural validation gate for inbound event payloads
// ABOUTME: Ordered checks produce a typed Event or a rejection reason

package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Rejection reasons for payloads that fail structural validation. The check
// order is part of the contract: a payload missing several fields is always
// rejected for the earliest one.
var (
	ErrNotObject        = errors.New("payload must be a JSON object")
	ErrMissingID        = errors.New("id must be a non-empty string")
	ErrTypeNotString    = errors.New("type must be a string")
	ErrTimestampMissing = errors.New("timestamp must be a string")
	ErrSessionIDMissing = errors.New("session_id must be a string")
)

// Validate checks a decoded payload against the canonical event schema and
// returns a typed Event carrying the original bytes. It is pure: no logging,
// no persistence, no mutation of anything outside the returned value.
//
// Checks run in a fixed order: object shape, id, type-is-string, timestamp,
// session_id, then type membership in the closed set. Unknown extra fields
// pass through untouched via Event.Raw.
func Validate(data []byte) (*Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, ErrNotObject
	}

	id, ok := stringField(fields, "id")
	if !ok || id == "" {
		return nil, ErrMissingID
	}
	typ, ok := stringField(fields, "type")
	if !ok {
		return nil, ErrTypeNotString
	}
	if _, ok := stringField(fields, "timestamp"); !ok {
		return nil, ErrTimestampMissing
	}
	if _, ok := stringField(fields, "session_id"); !ok {
		return nil, ErrSessionIDMissing
	}
	if !KnownType(Type(typ)) {
		return nil, fmt.Errorf("unknown event type: %q", typ)
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		// Known fields with wrong JSON types (e.g. numeric tool_use_id)
		// count as structural failures too.
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}
	ev.Raw = append(json.RawMessage(nil), data...)
	return &ev, nil
}

// stringField extracts a top-level string field, reporting whether the field
// exists and is a JSON string.
func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
