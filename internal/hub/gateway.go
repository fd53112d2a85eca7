// ABOUTME: Per-consumer websocket endpoint for live events and historical backfill
// ABOUTME: Handles subscribe/replay requests and fans out broadcast events

package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/hivewatch/hivewatch/internal/store"
)

const (
	// subscribeHistoryLimit bounds the backfill sent for a subscribe request.
	subscribeHistoryLimit = 500
	// replayHistoryLimit bounds a replay-from-timestamp response.
	replayHistoryLimit = 1000

	outboundBufferSize = 256
	maxMessageSize     = 1 << 20

	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Gateway upgrades consumer connections and speaks the synchronization
// protocol: a connected acknowledgement, history replies for subscribe and
// replay requests, and an event broadcast for every newly persisted event.
type Gateway struct {
	store       store.EventStore
	broadcaster *Broadcaster
	logger      *slog.Logger
	upgrader    websocket.Upgrader
	clients     atomic.Int64
}

// NewGateway creates a gateway backed by the given store and broadcaster.
func NewGateway(st store.EventStore, b *Broadcaster, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		store:       st,
		broadcaster: b,
		logger:      logger.With("component", "gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Local tool; consumers connect from arbitrary origins.
				return true
			},
		},
	}
}

// ClientCount returns the number of currently open consumer connections.
func (g *Gateway) ClientCount() int {
	return int(g.clients.Load())
}

// Handle upgrades the request and runs the connection until the consumer
// disconnects. Bad input never closes the connection; only read errors
// (including client-initiated close) end it.
func (g *Gateway) Handle(c echo.Context) error {
	ws, err := g.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return err
	}

	conn := &connection{
		ws:        ws,
		sessionID: uuid.New().String(),
		send:      make(chan []byte, outboundBufferSize),
		logger:    g.logger,
	}

	g.clients.Add(1)
	defer g.clients.Add(-1)

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// Register with the broadcaster before acknowledging the connection so
	// an event persisted right after the ack cannot slip past this consumer.
	events, _ := g.broadcaster.Subscribe(ctx)

	go conn.writePump(ctx)
	go func() {
		for ev := range events {
			conn.enqueue(&ServerMessage{Type: MsgEvent, Data: ev})
		}
	}()

	conn.enqueue(&ServerMessage{Type: MsgConnected, SessionID: conn.sessionID})

	g.logger.Info("consumer connected", "session_id", conn.sessionID)
	g.readPump(ctx, conn)
	g.logger.Info("consumer disconnected", "session_id", conn.sessionID)

	ws.Close()
	return nil
}

// readPump consumes inbound messages until the connection drops. Malformed
// JSON and unrecognized message types are dropped silently: the gateway must
// survive arbitrary garbage from any consumer.
func (g *Gateway) readPump(ctx context.Context, conn *connection) {
	conn.ws.SetReadLimit(maxMessageSize)
	conn.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				g.logger.Warn("websocket read error", "session_id", conn.sessionID, "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			g.logger.Debug("ignoring malformed message", "session_id", conn.sessionID)
			continue
		}

		switch msg.Type {
		case MsgSubscribe:
			g.handleSubscribe(ctx, conn, msg)
		case MsgReplay:
			g.handleReplay(ctx, conn, msg)
		default:
			g.logger.Debug("ignoring unknown message type",
				"session_id", conn.sessionID, "type", msg.Type)
		}
	}
}

// handleSubscribe answers with the most recent matching events, presented
// chronologically.
func (g *Gateway) handleSubscribe(ctx context.Context, conn *connection, msg ClientMessage) {
	events, err := g.store.Query(ctx, store.QueryParams{
		SessionID: msg.SessionID,
		Limit:     subscribeHistoryLimit,
		Latest:    true,
	})
	if err != nil {
		g.logger.Error("subscribe history query failed",
			"session_id", conn.sessionID, "error", err)
		return
	}
	conn.enqueue(&ServerMessage{Type: MsgHistory, Data: historyData(events)})
}

// handleReplay answers with events from the requested timestamp forward.
// A replay without a timestamp is ignored like any other malformed request.
func (g *Gateway) handleReplay(ctx context.Context, conn *connection, msg ClientMessage) {
	if msg.FromTimestamp == "" {
		return
	}
	events, err := g.store.Query(ctx, store.QueryParams{
		FromTimestamp: msg.FromTimestamp,
		Limit:         replayHistoryLimit,
	})
	if err != nil {
		g.logger.Error("replay query failed",
			"session_id", conn.sessionID, "error", err)
		return
	}
	conn.enqueue(&ServerMessage{Type: MsgHistory, Data: historyData(events)})
}

// connection owns a single consumer socket. All writes flow through the send
// channel so only writePump touches the websocket writer.
type connection struct {
	ws        *websocket.Conn
	sessionID string
	send      chan []byte
	logger    *slog.Logger
}

// enqueue marshals and queues an outbound message. Non-blocking: when the
// consumer cannot keep up, its messages are dropped rather than stalling
// the caller.
func (c *connection) enqueue(msg *ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("marshaling server message", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Debug("dropped message for slow consumer",
			"session_id", c.sessionID, "type", msg.Type)
	}
}

// writePump is the sole writer on the socket, draining the send queue and
// keeping the connection alive with pings.
func (c *connection) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
