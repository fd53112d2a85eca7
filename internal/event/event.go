// ABOUTME: Canonical event model for agent-runtime lifecycle events
// ABOUTME: Defines the closed event-type set and timestamp/parent helpers

package event

import (
	"encoding/json"
	"time"
)

// Type categorizes the kind of lifecycle event.
type Type string

const (
	TypeSessionStarted    Type = "session_started"
	TypeSessionEnded      Type = "session_ended"
	TypeAgentSpawned      Type = "agent_spawned"
	TypeAgentCompleted    Type = "agent_completed"
	TypeToolCallStarted   Type = "tool_call_started"
	TypeToolCallCompleted Type = "tool_call_completed"
	TypeToolCallFailed    Type = "tool_call_failed"
	TypeMessageSent       Type = "message_sent"
	TypeUserPrompt        Type = "user_prompt"
	TypeWaitingForUser    Type = "waiting_for_user"
	TypeContextCompaction Type = "context_compaction"
)

// knownTypes is the closed set of accepted event types.
var knownTypes = map[Type]struct{}{
	TypeSessionStarted:    {},
	TypeSessionEnded:      {},
	TypeAgentSpawned:      {},
	TypeAgentCompleted:    {},
	TypeToolCallStarted:   {},
	TypeToolCallCompleted: {},
	TypeToolCallFailed:    {},
	TypeMessageSent:       {},
	TypeUserPrompt:        {},
	TypeWaitingForUser:    {},
	TypeContextCompaction: {},
}

// KnownType reports whether t is a member of the closed event-type set.
func KnownType(t Type) bool {
	_, ok := knownTypes[t]
	return ok
}

// Event is a single immutable lifecycle event. The producer generates the ID,
// which doubles as the store's idempotency key. Timestamp is an RFC3339
// string and is the log's sole ordering key.
//
// Raw holds the original JSON payload so that fields outside this struct
// survive storage and broadcast untouched.
type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`

	// Spawn / identity fields
	AgentID         string `json:"agent_id,omitempty"`
	ParentSessionID string `json:"parent_session_id,omitempty"`
	AgentType       string `json:"agent_type,omitempty"`
	Model           string `json:"model,omitempty"`
	TaskDescription string `json:"task_description,omitempty"`

	// Tool-call fields
	ToolUseID string `json:"tool_use_id,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	Error     string `json:"error,omitempty"`

	// Message / prompt fields
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Content string `json:"content,omitempty"`
	Prompt  string `json:"prompt,omitempty"`

	// Notification fields
	Message          string `json:"message,omitempty"`
	NotificationType string `json:"notification_type,omitempty"`

	// Session-end / compaction fields
	Reason  string `json:"reason,omitempty"`
	Trigger string `json:"trigger,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Time parses the event timestamp. Malformed timestamps yield the zero time;
// chronological queries are the store's job, so the reducer only needs a
// best-effort value for bookkeeping.
func (e *Event) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		t, err = time.Parse(time.RFC3339, e.Timestamp)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

// Normalize fills derivable fields so downstream folds never re-implement
// fallbacks per branch. Today that is the spawn parent link: producers do not
// always populate parent_session_id separately from session_id.
func (e *Event) Normalize() {
	if e.Type == TypeAgentSpawned && e.ParentSessionID == "" {
		e.ParentSessionID = e.SessionID
	}
}

// SubjectID returns the agent id an event is about, falling back to the
// owning session when the producer did not set agent_id.
func (e *Event) SubjectID() string {
	if e.AgentID != "" {
		return e.AgentID
	}
	return e.SessionID
}

// MarshalJSON emits the original payload when one was captured at validation
// time, preserving producer fields this struct does not model.
func (e *Event) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	type plain Event
	return json.Marshal((*plain)(e))
}
