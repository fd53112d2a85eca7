// Package state folds event streams into a live view of agent activity.
//
// # Reducer
//
// The Reducer owns a tree of AgentNode values rooted at the session agent.
// ProcessEvent applies one event:
//
//	r.ProcessEvent(ev, nil)        // live event
//	r.ProcessEvent(ev, &eventTime) // replayed history
//
// The two modes differ in how transitional states resolve. Live events use
// short timers (spawning becomes active, completed agents are removed, error
// reverts to active) so the UI can show the transition. Replayed events apply
// transitions synchronously since no one is watching a backfill animate.
//
// Timers are guarded by an epoch counter. BumpEpoch invalidates every pending
// timer, which the consumer calls on reconnect so a stale timer from a
// previous connection can never mutate freshly rebuilt state.
//
// # Sweeps
//
// Two periodic passes keep the tree honest between events:
//
//   - InferThinking: an active agent silent for longer than ThinkingAfter is
//     shown as thinking
//   - CollectStale: removes completed and long-idle agents, prunes orphaned
//     tool calls, and forces an idle root to waiting
//
// # Pacing
//
// PacingBuffer spaces bursts of live events a fixed delay apart so state
// changes remain readable. Replayed history bypasses it.
package state
