// ABOUTME: Consumer client for the synchronization channel
// ABOUTME: Replays history into the reducer, then paces live events through the buffer

package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hivewatch/hivewatch/internal/event"
	"github.com/hivewatch/hivewatch/internal/hub"
	"github.com/hivewatch/hivewatch/internal/state"
)

const (
	defaultDrainInterval  = 50 * time.Millisecond
	defaultSweepInterval  = time.Second
	defaultReconnectDelay = 2 * time.Second
)

// Options configures a consumer client.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://127.0.0.1:4567/ws.
	URL string
	// SessionID optionally narrows the subscribe-time backfill to one session.
	SessionID string
	// Reducer timing knobs; zero value means state.DefaultConfig().
	ReducerConfig state.Config
	// BufferDelay is the pacing buffer's minimum event spacing.
	BufferDelay time.Duration
	// DrainInterval is the tick at which due buffered events are folded.
	DrainInterval time.Duration
	// SweepInterval is the thinking-inference period.
	SweepInterval time.Duration
	// ReconnectDelay is the pause between reconnect attempts.
	ReconnectDelay time.Duration
	Logger         *slog.Logger
}

// Client maintains a live agent-state view over the synchronization channel.
// Every (re)connect bumps the reducer epoch before any exchange, so timers
// scheduled under a superseded connection can never touch current state.
type Client struct {
	opts    Options
	reducer *state.Reducer
	buffer  *state.PacingBuffer
	logger  *slog.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// New creates a client. Call Run to connect.
func New(opts Options) *Client {
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = defaultDrainInterval
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.ReducerConfig == (state.Config{}) {
		opts.ReducerConfig = state.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "client")

	return &Client{
		opts:    opts,
		reducer: state.NewReducer(opts.ReducerConfig, logger),
		buffer:  state.NewPacingBuffer(opts.BufferDelay),
		logger:  logger,
	}
}

// Reducer exposes the underlying reducer, chiefly for tests and inspection.
func (c *Client) Reducer() *state.Reducer { return c.reducer }

// Snapshot returns the current derived agent state.
func (c *Client) Snapshot() state.Snapshot { return c.reducer.Snapshot() }

// Run connects and processes the channel until ctx is cancelled, reconnecting
// after transport failures. Reconnection is expected and frequent; the epoch
// mechanism makes it safe.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.logger.Warn("connection lost", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

// Replay asks the gateway for history from the given RFC3339 timestamp.
func (c *Client) Replay(fromTimestamp string) error {
	return c.send(hub.ClientMessage{Type: hub.MsgReplay, FromTimestamp: fromTimestamp})
}

// serverEnvelope mirrors hub.ServerMessage with the payload left raw so each
// message type can decode its own shape.
type serverEnvelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

func (c *Client) runConnection(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return err
	}

	// Epoch first: anything still scheduled from the previous connection is
	// dead before this one exchanges a single message.
	c.reducer.BumpEpoch()
	c.buffer.Reset()

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		c.reducer.BumpEpoch()
		c.writeMu.Lock()
		c.conn = nil
		c.writeMu.Unlock()
		conn.Close()
	}()

	go c.drainLoop(connCtx)

	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var msg serverEnvelope
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case hub.MsgConnected:
			c.logger.Info("connected", "session_id", msg.SessionID)
			if err := c.send(hub.ClientMessage{Type: hub.MsgSubscribe, SessionID: c.opts.SessionID}); err != nil {
				return err
			}
		case hub.MsgHistory:
			c.foldHistory(msg.Data)
		case hub.MsgEvent:
			var ev event.Event
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				continue
			}
			c.buffer.Add(&ev)
		default:
			// Unrecognized server messages are ignored, never fatal.
		}
	}
}

// foldHistory processes a bulk replay: every event is folded synchronously
// with its own recorded timestamp, bypassing the pacing buffer, then the
// stale collector runs once. Events buffered between the subscribe and the
// reply are folded live afterwards, skipping ids the history already covers.
func (c *Client) foldHistory(data json.RawMessage) {
	var events []*event.Event
	if err := json.Unmarshal(data, &events); err != nil {
		c.logger.Debug("ignoring malformed history payload")
		return
	}

	// Live events buffered while the backfill was in flight are not lost:
	// whatever the history does not already cover is folded live afterwards.
	pending := c.buffer.Flush()

	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		seen[ev.ID] = struct{}{}
		t := ev.Time()
		c.reducer.ProcessEvent(ev, &t)
	}
	c.reducer.CollectStale()

	for _, ev := range pending {
		if _, ok := seen[ev.ID]; ok {
			continue
		}
		c.reducer.ProcessEvent(ev, nil)
	}

	c.logger.Info("history folded", "events", len(events), "buffered", len(pending))
}

// drainLoop folds due buffered events and runs the thinking sweep while the
// connection is up.
func (c *Client) drainLoop(ctx context.Context) {
	drain := time.NewTicker(c.opts.DrainInterval)
	defer drain.Stop()
	sweep := time.NewTicker(c.opts.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-drain.C:
			for _, ev := range c.buffer.Drain() {
				c.reducer.ProcessEvent(ev, nil)
			}
		case <-sweep.C:
			c.reducer.InferThinking()
		}
	}
}

// send writes one client message; writes are serialized because replay
// requests can race the subscribe handshake.
func (c *Client) send(msg hub.ClientMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	return c.conn.WriteJSON(msg)
}
