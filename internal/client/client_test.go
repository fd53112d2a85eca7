// ABOUTME: Tests for the consumer client against a scripted websocket server
// ABOUTME: Covers the subscribe handshake, history folds, and paced live events

package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hivewatch/hivewatch/internal/event"
	"github.com/hivewatch/hivewatch/internal/hub"
	"github.com/hivewatch/hivewatch/internal/state"
)

// scriptedServer accepts one websocket consumer, sends the connected
// acknowledgement, and answers subscribe with the given history.
type scriptedServer struct {
	history []*event.Event
	live    chan *event.Event
	gotSub  chan hub.ClientMessage
}

func newScriptedServer(t *testing.T, history []*event.Event) (*scriptedServer, string) {
	t.Helper()
	s := &scriptedServer{
		history: history,
		live:    make(chan *event.Event, 16),
		gotSub:  make(chan hub.ClientMessage, 1),
	}

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		require.NoError(t, ws.WriteJSON(hub.ServerMessage{Type: hub.MsgConnected, SessionID: "conn-1"}))

		// Reader: waits for the subscribe request, then answers with history.
		go func() {
			for {
				_, data, err := ws.ReadMessage()
				if err != nil {
					return
				}
				var msg hub.ClientMessage
				if json.Unmarshal(data, &msg) != nil {
					continue
				}
				if msg.Type == hub.MsgSubscribe {
					s.gotSub <- msg
					ws.WriteJSON(hub.ServerMessage{Type: hub.MsgHistory, Data: s.history})
				}
			}
		}()

		for ev := range s.live {
			if err := ws.WriteJSON(hub.ServerMessage{Type: hub.MsgEvent, Data: ev}); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(s.live) })

	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func historyEvent(id string, typ event.Type, session string, age time.Duration) *event.Event {
	return &event.Event{
		ID:        id,
		Type:      typ,
		Timestamp: time.Now().Add(-age).UTC().Format(time.RFC3339),
		SessionID: session,
	}
}

func TestClient_SubscribeAndFoldHistory(t *testing.T) {
	history := []*event.Event{
		historyEvent("e1", event.TypeSessionStarted, "root", 5*time.Second),
		historyEvent("e2", event.TypeToolCallStarted, "root", 4*time.Second),
	}
	history[1].ToolUseID = "tu-1"
	history[1].ToolName = "bash"

	srv, url := newScriptedServer(t, history)

	c := New(Options{URL: url, SessionID: "root"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	select {
	case sub := <-srv.gotSub:
		assert.Equal(t, "root", sub.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe request received")
	}

	require.Eventually(t, func() bool {
		node, ok := c.Reducer().Agent("root")
		return ok && node.Status == state.StatusToolExecuting
	}, 2*time.Second, 10*time.Millisecond)

	// Replayed history bypasses the pacing buffer entirely.
	assert.Zero(t, c.buffer.Len())
}

func TestClient_LiveEventsFlowThroughBuffer(t *testing.T) {
	history := []*event.Event{
		historyEvent("e1", event.TypeSessionStarted, "root", 5*time.Second),
	}
	srv, url := newScriptedServer(t, history)

	c := New(Options{
		URL:           url,
		BufferDelay:   10 * time.Millisecond,
		DrainInterval: 10 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	<-srv.gotSub

	live := historyEvent("e2", event.TypeWaitingForUser, "root", 0)
	live.Message = "need input"
	srv.live <- live

	require.Eventually(t, func() bool {
		node, ok := c.Reducer().Agent("root")
		return ok && node.Status == state.StatusWaiting
	}, 2*time.Second, 10*time.Millisecond)

	node, _ := c.Reducer().Agent("root")
	assert.Equal(t, "need input", node.NotificationMessage)
}

func TestClient_EpochAdvancesOnEveryConnect(t *testing.T) {
	_, url := newScriptedServer(t, nil)

	c := New(Options{URL: url})
	before := c.Reducer().Epoch()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		return c.Reducer().Epoch() > before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClient_MalformedServerMessagesAreIgnored(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		ws.WriteMessage(websocket.TextMessage, []byte("not json"))
		ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"mystery"}`))
		ws.WriteJSON(hub.ServerMessage{Type: hub.MsgConnected, SessionID: "conn-1"})
		ws.WriteJSON(hub.ServerMessage{Type: hub.MsgHistory, Data: []*event.Event{
			historyEvent("e1", event.TypeSessionStarted, "root", time.Second),
		}})

		// Keep the socket open until the test finishes.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(Options{URL: url})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		_, ok := c.Reducer().Agent("root")
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClient_HistoryFoldRunsStaleCollector(t *testing.T) {
	history := []*event.Event{
		historyEvent("e1", event.TypeSessionStarted, "root", 5*time.Minute),
		historyEvent("e2", event.TypeAgentSpawned, "root", 5*time.Minute),
	}
	history[1].AgentID = "old-child"

	srv, url := newScriptedServer(t, history)

	c := New(Options{URL: url})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	<-srv.gotSub

	require.Eventually(t, func() bool {
		_, ok := c.Reducer().Agent("root")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// The spawned child is far past the staleness threshold; the post-replay
	// collector must have removed it while keeping the root.
	require.Eventually(t, func() bool {
		_, ok := c.Reducer().Agent("old-child")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClient_BufferedLiveEventsSurviveHistoryFold(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		ws.WriteJSON(hub.ServerMessage{Type: hub.MsgConnected, SessionID: "conn-1"})

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var msg hub.ClientMessage
			if json.Unmarshal(data, &msg) == nil && msg.Type == hub.MsgSubscribe {
				break
			}
		}

		// A broadcast lands after the subscribe but before the backfill
		// reply. The consumer buffers it; the history fold must not lose it.
		live := historyEvent("e2", event.TypeWaitingForUser, "root", 0)
		live.Message = "need input"
		require.NoError(t, ws.WriteJSON(hub.ServerMessage{Type: hub.MsgEvent, Data: live}))
		require.NoError(t, ws.WriteJSON(hub.ServerMessage{Type: hub.MsgHistory, Data: []*event.Event{
			historyEvent("e1", event.TypeSessionStarted, "root", 5*time.Second),
		}}))

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	// With the drain tick out of the picture, the history fold is the only
	// path that can apply the buffered event.
	c := New(Options{URL: url, DrainInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		node, ok := c.Reducer().Agent("root")
		return ok && node.Status == state.StatusWaiting
	}, 2*time.Second, 10*time.Millisecond)

	node, _ := c.Reducer().Agent("root")
	assert.Equal(t, "need input", node.NotificationMessage)
	assert.Zero(t, c.buffer.Len())
}

func TestClient_ReplayRequest(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotReplay := make(chan hub.ClientMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		ws.WriteJSON(hub.ServerMessage{Type: hub.MsgConnected, SessionID: "conn-1"})
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var msg hub.ClientMessage
			if json.Unmarshal(data, &msg) == nil && msg.Type == hub.MsgReplay {
				gotReplay <- msg
			}
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(Options{URL: url})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	from := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	require.Eventually(t, func() bool {
		return c.Replay(from) == nil
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case msg := <-gotReplay:
		assert.Equal(t, from, msg.FromTimestamp)
	case <-time.After(2 * time.Second):
		t.Fatal("no replay request received")
	}
}

func TestClient_DefaultOptions(t *testing.T) {
	c := New(Options{URL: "ws://unused"})
	assert.Equal(t, defaultDrainInterval, c.opts.DrainInterval)
	assert.Equal(t, defaultSweepInterval, c.opts.SweepInterval)
	assert.Equal(t, defaultReconnectDelay, c.opts.ReconnectDelay)
	assert.NotNil(t, c.Reducer())
}
