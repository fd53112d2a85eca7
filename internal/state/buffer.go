// ABOUTME: Client-side pacing buffer smoothing bursty live event delivery
// ABOUTME: Enforces a minimum spacing between events handed to the reducer

package state

import (
	"sync"
	"time"

	"github.com/hivewatch/hivewatch/internal/event"
)

// DefaultBufferDelay is the minimum spacing between buffered live events.
const DefaultBufferDelay = 100 * time.Millisecond

type bufferedEvent struct {
	ev          *event.Event
	scheduledAt time.Time
}

// PacingBuffer re-emits live events at a bounded minimum cadence so
// downstream presentation gets time to show each transition distinctly.
// Each arriving event is scheduled at max(lastScheduled+delay, now); a drain
// loop driven by the host's tick releases every due entry in enqueue order.
// Replayed history never passes through here; it is folded immediately in
// one batch.
type PacingBuffer struct {
	mu            sync.Mutex
	delay         time.Duration
	now           func() time.Time
	lastScheduled time.Time
	queue         []bufferedEvent
}

// NewPacingBuffer creates a buffer with the given minimum spacing.
// A non-positive delay falls back to DefaultBufferDelay.
func NewPacingBuffer(delay time.Duration) *PacingBuffer {
	if delay <= 0 {
		delay = DefaultBufferDelay
	}
	return &PacingBuffer{
		delay: delay,
		now:   time.Now,
	}
}

// Add enqueues a live event at the next free slot in the cadence.
func (b *PacingBuffer) Add(ev *event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	scheduledAt := b.lastScheduled.Add(b.delay)
	if now := b.now(); scheduledAt.Before(now) {
		scheduledAt = now
	}
	b.lastScheduled = scheduledAt
	b.queue = append(b.queue, bufferedEvent{ev: ev, scheduledAt: scheduledAt})
}

// Drain removes and returns every queued event whose scheduled time has
// arrived, in enqueue order.
func (b *PacingBuffer) Drain() []*event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var due []*event.Event
	i := 0
	for ; i < len(b.queue); i++ {
		if b.queue[i].scheduledAt.After(now) {
			break
		}
		due = append(due, b.queue[i].ev)
	}
	b.queue = b.queue[i:]
	return due
}

// Flush removes and returns every queued event regardless of its scheduled
// time, in enqueue order, and resets the cadence position.
func (b *PacingBuffer) Flush() []*event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*event.Event, 0, len(b.queue))
	for _, qe := range b.queue {
		out = append(out, qe.ev)
	}
	b.queue = nil
	b.lastScheduled = time.Time{}
	return out
}

// Len returns the number of events still waiting.
func (b *PacingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Reset drops any queued events and the cadence position. Called when a
// replay supersedes whatever live events were still in flight.
func (b *PacingBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = nil
	b.lastScheduled = time.Time{}
}
