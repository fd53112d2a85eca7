// ABOUTME: Wire message shapes for the bidirectional synchronization channel
// ABOUTME: Three server-to-client and two client-to-server JSON message types

package hub

import "github.com/hivewatch/hivewatch/internal/event"

// Server → client message types.
const (
	MsgConnected = "connected"
	MsgHistory   = "history"
	MsgEvent     = "event"
)

// Client → server message types.
const (
	MsgSubscribe = "subscribe"
	MsgReplay    = "replay"
)

// ServerMessage is any message sent from the gateway to a consumer.
// Data carries a single event for "event" or an event slice for "history".
type ServerMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// ClientMessage is any message a consumer sends to the gateway. Unknown
// types and malformed payloads are ignored, never fatal to the connection.
type ClientMessage struct {
	Type          string `json:"type"`
	SessionID     string `json:"sessionId,omitempty"`
	FromTimestamp string `json:"fromTimestamp,omitempty"`
}

// historyData wraps events so an empty backfill serializes as [] rather
// than null.
func historyData(events []*event.Event) []*event.Event {
	if events == nil {
		return []*event.Event{}
	}
	return events
}
