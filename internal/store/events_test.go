// ABOUTME: Tests for the SQLite event log
// ABOUTME: Covers idempotent insert, ordering, latest-N selection, filters, and sessions

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivewatch/hivewatch/internal/event"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// testEvent builds a minimal valid event n seconds after a fixed base time.
func testEvent(id string, typ event.Type, session string, offsetSec int) *event.Event {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return &event.Event{
		ID:        id,
		Type:      typ,
		Timestamp: base.Add(time.Duration(offsetSec) * time.Second).Format(time.RFC3339),
		SessionID: session,
	}
}

func TestStore_InsertAndGetByID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	ev := testEvent("evt-1", event.TypeSessionStarted, "sess-a", 0)
	inserted, err := store.Insert(ctx, ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	got, err := store.GetByID(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "evt-1", got.ID)
	assert.Equal(t, event.TypeSessionStarted, got.Type)
	assert.Equal(t, "sess-a", got.SessionID)
}

func TestStore_GetByID_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestStore_Insert_DuplicateIDIsNoOp(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	first := testEvent("evt-dup", event.TypeUserPrompt, "sess-a", 0)
	first.Prompt = "original"
	inserted, err := store.Insert(ctx, first)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same id, different payload: silently ignored, first payload wins.
	second := testEvent("evt-dup", event.TypeUserPrompt, "sess-b", 10)
	second.Prompt = "replacement"
	inserted, err = store.Insert(ctx, second)
	require.NoError(t, err)
	assert.False(t, inserted)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := store.GetByID(ctx, "evt-dup")
	require.NoError(t, err)
	assert.Equal(t, "original", got.Prompt)
	assert.Equal(t, "sess-a", got.SessionID)
}

func TestStore_Query_AscendingByTimestamp(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// Insert out of chronological order.
	for _, offset := range []int{5, 1, 3, 2, 4} {
		ev := testEvent(fmt.Sprintf("evt-%d", offset), event.TypeUserPrompt, "sess-a", offset)
		_, err := store.Insert(ctx, ev)
		require.NoError(t, err)
	}

	events, err := store.Query(ctx, QueryParams{})
	require.NoError(t, err)
	require.Len(t, events, 5)

	for i := 1; i < len(events); i++ {
		assert.LessOrEqual(t, events[i-1].Timestamp, events[i].Timestamp)
	}
}

func TestStore_Query_LatestReturnsNewestAscending(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ev := testEvent(fmt.Sprintf("evt-%d", i), event.TypeUserPrompt, "sess-a", i)
		_, err := store.Insert(ctx, ev)
		require.NoError(t, err)
	}

	events, err := store.Query(ctx, QueryParams{Limit: 3, Latest: true})
	require.NoError(t, err)
	require.Len(t, events, 3)

	// The 3 chronologically-latest rows, still presented ascending.
	assert.Equal(t, "evt-7", events[0].ID)
	assert.Equal(t, "evt-8", events[1].ID)
	assert.Equal(t, "evt-9", events[2].ID)
}

func TestStore_Query_Filters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Insert(ctx, testEvent(fmt.Sprintf("a-%d", i), event.TypeUserPrompt, "sess-a", i))
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := store.Insert(ctx, testEvent(fmt.Sprintf("b-%d", i), event.TypeToolCallStarted, "sess-b", i))
		require.NoError(t, err)
	}

	bySession, err := store.Query(ctx, QueryParams{SessionID: "sess-a"})
	require.NoError(t, err)
	assert.Len(t, bySession, 3)
	for _, ev := range bySession {
		assert.Equal(t, "sess-a", ev.SessionID)
	}

	byType, err := store.Query(ctx, QueryParams{Type: string(event.TypeToolCallStarted)})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	from := testEvent("", "", "", 1).Timestamp
	fromTS, err := store.Query(ctx, QueryParams{SessionID: "sess-a", FromTimestamp: from})
	require.NoError(t, err)
	assert.Len(t, fromTS, 2)
}

func TestStore_Query_LimitCapAndOffset(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := store.Insert(ctx, testEvent(fmt.Sprintf("evt-%d", i), event.TypeUserPrompt, "sess-a", i))
		require.NoError(t, err)
	}

	// A limit above the hard cap is clamped, not rejected.
	events, err := store.Query(ctx, QueryParams{Limit: 5000})
	require.NoError(t, err)
	assert.Len(t, events, 8)

	paged, err := store.Query(ctx, QueryParams{Limit: 3, Offset: 3})
	require.NoError(t, err)
	require.Len(t, paged, 3)
	assert.Equal(t, "evt-3", paged[0].ID)
}

func TestStore_Sessions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// sess-a is older; sess-b has the most recent activity.
	_, err := store.Insert(ctx, testEvent("a-1", event.TypeSessionStarted, "sess-a", 0))
	require.NoError(t, err)
	_, err = store.Insert(ctx, testEvent("a-2", event.TypeSessionEnded, "sess-a", 5))
	require.NoError(t, err)
	_, err = store.Insert(ctx, testEvent("b-1", event.TypeSessionStarted, "sess-b", 10))
	require.NoError(t, err)

	sessions, err := store.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	assert.Equal(t, "sess-b", sessions[0].SessionID)
	assert.Equal(t, 1, sessions[0].EventCount)
	assert.Equal(t, "sess-a", sessions[1].SessionID)
	assert.Equal(t, 2, sessions[1].EventCount)
	assert.Equal(t, testEvent("", "", "", 0).Timestamp, sessions[1].FirstEvent)
	assert.Equal(t, testEvent("", "", "", 5).Timestamp, sessions[1].LastEvent)
}

func TestStore_Count(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = store.Insert(ctx, testEvent("evt-1", event.TypeUserPrompt, "sess-a", 0))
	require.NoError(t, err)

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_PayloadExtraFieldsSurviveStorage(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	payload := []byte(`{
		"id": "evt-raw",
		"type": "message_sent",
		"timestamp": "2026-08-30T12:00:00Z",
		"session_id": "sess-a",
		"custom_field": "survives"
	}`)
	ev, err := event.Validate(payload)
	require.NoError(t, err)

	_, err = store.Insert(ctx, ev)
	require.NoError(t, err)

	got, err := store.GetByID(ctx, "evt-raw")
	require.NoError(t, err)
	assert.Contains(t, string(got.Raw), "custom_field")
}
