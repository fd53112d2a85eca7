// ABOUTME: Tests for the in-memory event broadcaster
// ABOUTME: Covers fan-out, slow-subscriber drops, and context-driven cleanup

package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivewatch/hivewatch/internal/event"
)

func testBroadcastEvent(id string) *event.Event {
	return &event.Event{ID: id, Type: event.TypeUserPrompt, SessionID: "sess-a"}
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(nil)
	ctx := context.Background()

	ch1, _ := b.Subscribe(ctx)
	ch2, _ := b.Subscribe(ctx)

	b.Publish(testBroadcastEvent("evt-1"))

	for _, ch := range []<-chan *event.Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, "evt-1", ev.ID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBroadcaster_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := NewBroadcaster(nil)
	ctx := context.Background()

	// Never drained; its buffer fills and overflow is dropped.
	b.Subscribe(ctx)
	healthy, _ := b.Subscribe(ctx)

	for i := 0; i < subscriberBufferSize+10; i++ {
		b.Publish(testBroadcastEvent("evt"))
		// Keep the healthy subscriber drained.
		select {
		case <-healthy:
		default:
		}
	}

	// Publish returned every time; reaching here is the assertion.
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(nil)

	ch, subID := b.Subscribe(context.Background())
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(subID)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)

	// Double unsubscribe is harmless.
	b.Unsubscribe(subID)
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(nil)

	ctx, cancel := context.WithCancel(context.Background())
	b.Subscribe(ctx)
	require.Equal(t, 1, b.SubscriberCount())

	cancel()
	assert.Eventually(t, func() bool {
		return b.SubscriberCount() == 0
	}, time.Second, 10*time.Millisecond)
}
