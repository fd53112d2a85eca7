// ABOUTME: State-reconciliation reducer folding lifecycle events into an agent tree
// ABOUTME: Handles replay-vs-live semantics, epoch-guarded timers, and auto-recovery

package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hivewatch/hivewatch/internal/event"
)

// maxInFlightMessages caps the transient message ring kept for presentation.
const maxInFlightMessages = 50

// Config holds the reducer's timing knobs.
type Config struct {
	// SpawnActivateDelay is how long a live-spawned agent stays "spawning"
	// before flipping to "active".
	SpawnActivateDelay time.Duration
	// CompletedRemoveDelay is how long a live-completed agent lingers before
	// removal.
	CompletedRemoveDelay time.Duration
	// ErrorRevertDelay is how long a live tool failure shows "error" before
	// reverting to "active".
	ErrorRevertDelay time.Duration
	// ThinkingAfter is the idle threshold for the thinking-inference sweep.
	ThinkingAfter time.Duration
	// StaleAfter is the post-replay staleness threshold for removing
	// non-root agents.
	StaleAfter time.Duration
	// RootStaleAfter is the post-replay threshold beyond which an idle,
	// non-completed root is forced to "waiting".
	RootStaleAfter time.Duration
}

// DefaultConfig returns the standard timing configuration.
func DefaultConfig() Config {
	return Config{
		SpawnActivateDelay:   300 * time.Millisecond,
		CompletedRemoveDelay: 500 * time.Millisecond,
		ErrorRevertDelay:     1500 * time.Millisecond,
		ThinkingAfter:        3 * time.Second,
		StaleAfter:           60 * time.Second,
		RootStaleAfter:       15 * time.Second,
	}
}

// toolCallEntry ties a registry entry to its owning agent so orphans can be
// pruned.
type toolCallEntry struct {
	agentID string
	call    ToolCall
}

// Reducer is the single owner of derived agent state. All events are folded
// one at a time under its mutex; deferred transitions run as timers that
// re-acquire the mutex and no-op if the connection epoch has advanced since
// they were scheduled.
type Reducer struct {
	mu     sync.Mutex
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	agents    map[string]*AgentNode
	rootID    string
	lastSeen  map[string]time.Time
	toolCalls map[string]toolCallEntry
	messages  []Message
	epoch     uint64
}

// NewReducer creates an empty reducer. Pass nil logger for default.
func NewReducer(cfg Config, logger *slog.Logger) *Reducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reducer{
		cfg:       cfg,
		logger:    logger.With("component", "reducer"),
		now:       time.Now,
		agents:    make(map[string]*AgentNode),
		lastSeen:  make(map[string]time.Time),
		toolCalls: make(map[string]toolCallEntry),
	}
}

// BumpEpoch advances the connection epoch, invalidating every timer
// scheduled under the previous one. Called on every connect and disconnect,
// before any replay or live fold begins.
func (r *Reducer) BumpEpoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++
	return r.epoch
}

// Epoch returns the current connection epoch.
func (r *Reducer) Epoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

// ProcessEvent folds one event into the agent tree. A non-nil eventTime marks
// replay mode: deferred transitions (spawn activation, completion removal,
// error revert) are applied or skipped synchronously instead of being
// scheduled. A nil eventTime marks a live event timed at the wall clock.
func (r *Reducer) ProcessEvent(ev *event.Event, eventTime *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.Normalize()

	replay := eventTime != nil
	t := r.now()
	if replay {
		t = *eventTime
	}

	switch ev.Type {
	case event.TypeSessionStarted:
		r.applySessionStarted(ev)
	case event.TypeSessionEnded:
		r.applySessionEnded(ev, t)
	case event.TypeAgentSpawned:
		r.applyAgentSpawned(ev, t, replay)
	case event.TypeAgentCompleted:
		r.applyAgentCompleted(ev, t, replay)
	case event.TypeToolCallStarted:
		r.applyToolCallStarted(ev, t)
	case event.TypeToolCallCompleted:
		r.applyToolCallCompleted(ev, t)
	case event.TypeToolCallFailed:
		r.applyToolCallFailed(ev, t, replay)
	case event.TypeWaitingForUser:
		r.applyWaitingForUser(ev, t)
	case event.TypeMessageSent:
		r.appendMessage(Message{
			EventID: ev.ID,
			From:    ev.From,
			To:      ev.To,
			Content: ev.Content,
			SeenAt:  t,
		})
	case event.TypeUserPrompt:
		r.appendMessage(Message{
			EventID: ev.ID,
			From:    "user",
			To:      ev.SessionID,
			Content: ev.Prompt,
			SeenAt:  t,
		})
	case event.TypeContextCompaction:
		// Bookkeeping only; compaction never changes agent status.
	}

	if id, ok := lastSeenSubject(ev); ok {
		r.lastSeen[id] = t
	}
}

// lastSeenSubject extracts the agent id whose last-seen time an event
// refreshes. UserPrompt has no single owning agent and is excluded;
// MessageSent keys on the sender.
func lastSeenSubject(ev *event.Event) (string, bool) {
	switch ev.Type {
	case event.TypeUserPrompt:
		return "", false
	case event.TypeMessageSent:
		if ev.From != "" {
			return ev.From, true
		}
		return ev.SessionID, true
	case event.TypeSessionStarted, event.TypeSessionEnded, event.TypeContextCompaction:
		return ev.SessionID, true
	default:
		return ev.SubjectID(), true
	}
}

func (r *Reducer) applySessionStarted(ev *event.Event) {
	r.rootID = ev.SessionID
	r.agents[ev.SessionID] = &AgentNode{
		ID:        ev.SessionID,
		Status:    StatusActive,
		AgentType: ev.AgentType,
		Model:     ev.Model,
	}
	r.logger.Debug("session started", "session_id", ev.SessionID)
}

func (r *Reducer) applySessionEnded(ev *event.Event, t time.Time) {
	node := r.ensureAgent(ev.SessionID, t)
	r.clearToolCall(node, "")
	if ev.Reason == "stop" {
		// Mid-conversation pause: the session will resume, notification
		// stays visible.
		node.Status = StatusWaiting
	} else {
		node.Status = StatusCompleted
		node.NotificationMessage = ""
		node.NotificationType = ""
	}
}

func (r *Reducer) applyAgentSpawned(ev *event.Event, t time.Time, replay bool) {
	childID := ev.SubjectID()
	parentID := ev.ParentSessionID

	parent := r.ensureAgent(parentID, t)
	if childID != parentID {
		parent.addChild(childID)
	}

	if node, ok := r.agents[childID]; ok {
		// Earlier events outran the spawn hook and auto-created this id.
		// Fill in the identity without discarding the state those events
		// built up: the active tool call and children stay as they are.
		node.ParentID = parentID
		if ev.AgentType != "" {
			node.AgentType = ev.AgentType
		}
		if ev.Model != "" {
			node.Model = ev.Model
		}
		if ev.TaskDescription != "" {
			node.TaskDescription = ev.TaskDescription
		}
		return
	}

	node := &AgentNode{
		ID:              childID,
		ParentID:        parentID,
		Status:          StatusSpawning,
		AgentType:       ev.AgentType,
		Model:           ev.Model,
		TaskDescription: ev.TaskDescription,
	}
	r.agents[childID] = node

	if replay {
		// Historical folds collapse the spawn animation into one step.
		node.Status = StatusActive
		return
	}

	r.scheduleLocked(r.cfg.SpawnActivateDelay, func() {
		if n, ok := r.agents[childID]; ok && n.Status == StatusSpawning {
			n.Status = StatusActive
		}
	})
}

func (r *Reducer) applyAgentCompleted(ev *event.Event, t time.Time, replay bool) {
	id := ev.SubjectID()
	node := r.ensureAgent(id, t)
	node.Status = StatusCompleted
	r.clearToolCall(node, "")

	if replay {
		// Replay has nobody watching the completion; the stale collector
		// removes the node afterwards.
		return
	}

	r.scheduleLocked(r.cfg.CompletedRemoveDelay, func() {
		r.removeAgentLocked(id)
	})
}

func (r *Reducer) applyToolCallStarted(ev *event.Event, t time.Time) {
	node := r.ensureAgent(ev.SubjectID(), t)
	node.Status = StatusToolExecuting
	node.NotificationMessage = ""
	node.NotificationType = ""

	r.clearToolCall(node, "")
	call := ToolCall{
		ToolUseID: ev.ToolUseID,
		ToolName:  ev.ToolName,
		StartedAt: t,
	}
	node.ActiveToolCall = &call
	if ev.ToolUseID != "" {
		r.toolCalls[ev.ToolUseID] = toolCallEntry{agentID: node.ID, call: call}
	}
}

func (r *Reducer) applyToolCallCompleted(ev *event.Event, t time.Time) {
	node := r.ensureAgent(ev.SubjectID(), t)
	node.Status = StatusActive
	r.clearToolCall(node, ev.ToolUseID)
}

func (r *Reducer) applyToolCallFailed(ev *event.Event, t time.Time, replay bool) {
	id := ev.SubjectID()
	node := r.ensureAgent(id, t)
	node.Status = StatusError
	r.clearToolCall(node, ev.ToolUseID)

	if replay {
		// Replayed failures stay visible as errors; there is no implicit
		// recovery for history.
		return
	}

	r.scheduleLocked(r.cfg.ErrorRevertDelay, func() {
		if n, ok := r.agents[id]; ok && n.Status == StatusError {
			n.Status = StatusActive
		}
	})
}

func (r *Reducer) applyWaitingForUser(ev *event.Event, t time.Time) {
	node := r.ensureAgent(ev.SubjectID(), t)
	node.Status = StatusWaiting
	node.NotificationMessage = ev.Message
	node.NotificationType = ev.NotificationType
}

// ensureAgent returns the node for id, synthesizing a minimal one when an
// event references an agent never formally introduced. The producer's
// lifecycle-start hooks are not guaranteed to fire before other hooks name
// the same id.
func (r *Reducer) ensureAgent(id string, t time.Time) *AgentNode {
	if node, ok := r.agents[id]; ok {
		return node
	}
	node := &AgentNode{
		ID:        id,
		Status:    StatusActive,
		AgentType: "unknown",
		Model:     "unknown",
	}
	r.agents[id] = node
	r.lastSeen[id] = t
	if r.rootID == "" {
		// First agent ever seen anchors the tree until a real
		// session_started arrives.
		r.rootID = id
	}
	r.logger.Debug("auto-created agent", "agent_id", id)
	return node
}

// clearToolCall drops the node's active tool call and its registry entry.
// When toolUseID is set, that registry entry is removed as well, covering
// producers that complete a call the node no longer references.
func (r *Reducer) clearToolCall(node *AgentNode, toolUseID string) {
	if node.ActiveToolCall != nil {
		delete(r.toolCalls, node.ActiveToolCall.ToolUseID)
		node.ActiveToolCall = nil
	}
	if toolUseID != "" {
		delete(r.toolCalls, toolUseID)
	}
}

// removeAgentLocked deletes a non-root agent and unlinks it from its parent.
// The root is exempt from every removal path.
func (r *Reducer) removeAgentLocked(id string) {
	if id == r.rootID {
		return
	}
	node, ok := r.agents[id]
	if !ok {
		return
	}
	if parent, ok := r.agents[node.ParentID]; ok {
		parent.removeChild(id)
	}
	if node.ActiveToolCall != nil {
		delete(r.toolCalls, node.ActiveToolCall.ToolUseID)
	}
	delete(r.agents, id)
	delete(r.lastSeen, id)
}

// scheduleLocked runs fn after d unless the epoch advances first. fn executes
// under the reducer mutex. Epoch comparison is the sole cancellation
// mechanism: a stale or duplicate connection's timers simply no-op.
func (r *Reducer) scheduleLocked(d time.Duration, fn func()) {
	epoch := r.epoch
	time.AfterFunc(d, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.epoch != epoch {
			return
		}
		fn()
	})
}

// appendMessage records a transient in-flight message, dropping the oldest
// beyond the ring cap.
func (r *Reducer) appendMessage(msg Message) {
	r.messages = append(r.messages, msg)
	if len(r.messages) > maxInFlightMessages {
		r.messages = r.messages[len(r.messages)-maxInFlightMessages:]
	}
}

// Snapshot is a deep copy of the derived state, safe for a renderer to walk
// while the reducer keeps folding.
type Snapshot struct {
	RootID    string
	Agents    map[string]*AgentNode
	ToolCalls map[string]ToolCall
	Messages  []Message
}

// Snapshot returns a copy of the current agent tree and registries.
func (r *Reducer) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		RootID:    r.rootID,
		Agents:    make(map[string]*AgentNode, len(r.agents)),
		ToolCalls: make(map[string]ToolCall, len(r.toolCalls)),
		Messages:  append([]Message(nil), r.messages...),
	}
	for id, node := range r.agents {
		snap.Agents[id] = node.clone()
	}
	for id, entry := range r.toolCalls {
		snap.ToolCalls[id] = entry.call
	}
	return snap
}

// Agent returns a copy of one node, if present.
func (r *Reducer) Agent(id string) (*AgentNode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	return node.clone(), true
}
