// ABOUTME: Thinking-inference sweep and post-replay stale-agent collector
// ABOUTME: Derives idle status heuristically and garbage-collects replayed history

package state

// InferThinking performs one sweep pass: every agent currently "active" whose
// last event is older than the idle threshold is flipped to "thinking". The
// caller drives the period (and only while a live connection is up); the
// sweep itself is purely additive inference and is never persisted.
func (r *Reducer) InferThinking() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, node := range r.agents {
		if node.Status != StatusActive {
			continue
		}
		seen, ok := r.lastSeen[id]
		if !ok {
			continue
		}
		if now.Sub(seen) > r.cfg.ThinkingAfter {
			node.Status = StatusThinking
		}
	}
}

// CollectStale runs once, synchronously, immediately after a bulk history
// replay. One atomic pass: the root is never removed; every other completed
// agent goes unconditionally; every other agent idle past the staleness
// threshold goes too, unlinked from its parent. Orphaned tool-call registry
// entries are pruned, a stale non-completed root is forced to "waiting", and
// every survivor's last-seen time resets to now so the thinking sweep does
// not misread freshly replayed history as idleness.
func (r *Reducer) CollectStale() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	for id, node := range r.agents {
		if id == r.rootID {
			continue
		}
		if node.Status == StatusCompleted {
			r.removeAgentLocked(id)
			continue
		}
		if seen, ok := r.lastSeen[id]; ok && now.Sub(seen) > r.cfg.StaleAfter {
			r.logger.Debug("removing stale agent", "agent_id", id)
			r.removeAgentLocked(id)
		}
	}

	// Prune registry entries no surviving agent claims.
	for toolUseID, entry := range r.toolCalls {
		node, ok := r.agents[entry.agentID]
		if !ok || node.ActiveToolCall == nil || node.ActiveToolCall.ToolUseID != toolUseID {
			delete(r.toolCalls, toolUseID)
		}
	}

	// Root staleness check uses the last real event time, before the reset
	// below rewrites it.
	if root, ok := r.agents[r.rootID]; ok && root.Status != StatusCompleted {
		if seen, ok := r.lastSeen[r.rootID]; ok && now.Sub(seen) > r.cfg.RootStaleAfter {
			root.Status = StatusWaiting
		}
	}

	for id := range r.agents {
		r.lastSeen[id] = now
	}
}
