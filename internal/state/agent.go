// ABOUTME: Derived agent entities reconstructed from the event stream
// ABOUTME: Defines AgentNode, status enum, tool-call records, and in-flight messages

package state

import "time"

// Status is the inferred lifecycle state of an agent.
type Status string

const (
	StatusSpawning      Status = "spawning"
	StatusActive        Status = "active"
	StatusThinking      Status = "thinking"
	StatusToolExecuting Status = "tool_executing"
	StatusWaiting       Status = "waiting"
	StatusCompleted     Status = "completed"
	StatusError         Status = "error"
)

// ToolCall records an in-progress tool invocation owned by one agent.
type ToolCall struct {
	ToolUseID string    `json:"tool_use_id"`
	ToolName  string    `json:"tool_name"`
	StartedAt time.Time `json:"started_at"`
}

// AgentNode is one agent in the derived tree. ParentID is a weak reference,
// not ownership: a parent's removal does not cascade to children.
type AgentNode struct {
	ID                  string    `json:"id"`
	ParentID            string    `json:"parent_id,omitempty"`
	Children            []string  `json:"children,omitempty"`
	Status              Status    `json:"status"`
	AgentType           string    `json:"agent_type"`
	Model               string    `json:"model"`
	TaskDescription     string    `json:"task_description,omitempty"`
	ActiveToolCall      *ToolCall `json:"active_tool_call,omitempty"`
	NotificationMessage string    `json:"notification_message,omitempty"`
	NotificationType    string    `json:"notification_type,omitempty"`
}

// clone returns a deep copy for snapshots.
func (n *AgentNode) clone() *AgentNode {
	out := *n
	out.Children = append([]string(nil), n.Children...)
	if n.ActiveToolCall != nil {
		tc := *n.ActiveToolCall
		out.ActiveToolCall = &tc
	}
	return &out
}

// addChild appends a child id, keeping the ordered set free of duplicates.
func (n *AgentNode) addChild(id string) {
	for _, c := range n.Children {
		if c == id {
			return
		}
	}
	n.Children = append(n.Children, id)
}

// removeChild unlinks a child id if present.
func (n *AgentNode) removeChild(id string) {
	for i, c := range n.Children {
		if c == id {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return
		}
	}
}

// Message is a transient in-flight record for the presentation layer. It does
// not affect agent status.
type Message struct {
	EventID string    `json:"event_id"`
	From    string    `json:"from"`
	To      string    `json:"to,omitempty"`
	Content string    `json:"content,omitempty"`
	SeenAt  time.Time `json:"seen_at"`
}
