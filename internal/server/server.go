// ABOUTME: HTTP API for event ingestion and queries, plus the websocket mount
// ABOUTME: Wires validator, store, and broadcaster into echo routes

package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hivewatch/hivewatch/internal/event"
	"github.com/hivewatch/hivewatch/internal/hub"
	"github.com/hivewatch/hivewatch/internal/store"
)

// Server exposes the ingestion and query API and the synchronization channel.
type Server struct {
	echo        *echo.Echo
	store       store.EventStore
	broadcaster *hub.Broadcaster
	gateway     *hub.Gateway
	logger      *slog.Logger
}

// New builds the server and registers all routes.
func New(st store.EventStore, b *hub.Broadcaster, g *hub.Gateway, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:        e,
		store:       st,
		broadcaster: b,
		gateway:     g,
		logger:      logger.With("component", "server"),
	}

	e.POST("/events", s.ingestEvent)
	e.GET("/events", s.listEvents)
	e.GET("/events/:id", s.getEvent)
	e.GET("/sessions", s.listSessions)
	e.GET("/health", s.health)
	e.GET("/ws", g.Handle)

	return s
}

// Handler returns the root handler, used by tests and the serve command.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.echo.Start(addr)
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ingestEvent validates and persists one event, broadcasting it to consumers
// on first insertion. Schema rejections are the producer's problem (400);
// storage faults are ours (500); duplicates succeed silently.
func (s *Server) ingestEvent(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reading request body"})
	}

	ev, err := event.Validate(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	ev.Normalize()

	inserted, err := s.store.Insert(c.Request().Context(), ev)
	if err != nil {
		s.logger.Error("storing event failed", "event_id", ev.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "storing event"})
	}

	if inserted {
		s.broadcaster.Publish(ev)
	}

	return c.JSON(http.StatusOK, echo.Map{"ok": true, "duplicate": !inserted})
}

// listEvents returns matching events ascending by timestamp.
func (s *Server) listEvents(c echo.Context) error {
	params := store.QueryParams{
		SessionID: c.QueryParam("session_id"),
		Type:      c.QueryParam("type"),
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "limit must be an integer"})
		}
		params.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "offset must be an integer"})
		}
		params.Offset = n
	}

	events, err := s.store.Query(c.Request().Context(), params)
	if err != nil {
		s.logger.Error("event query failed", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "querying events"})
	}
	if events == nil {
		events = []*event.Event{}
	}
	return c.JSON(http.StatusOK, events)
}

// getEvent looks up one event by id.
func (s *Server) getEvent(c echo.Context) error {
	ev, err := s.store.GetByID(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrEventNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	if err != nil {
		s.logger.Error("event lookup failed", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "querying event"})
	}
	return c.JSON(http.StatusOK, ev)
}

// listSessions summarizes the log per session.
func (s *Server) listSessions(c echo.Context) error {
	sessions, err := s.store.Sessions(c.Request().Context())
	if err != nil {
		s.logger.Error("session query failed", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "querying sessions"})
	}
	if sessions == nil {
		sessions = []store.SessionSummary{}
	}
	return c.JSON(http.StatusOK, sessions)
}

// health reports liveness plus basic counters.
func (s *Server) health(c echo.Context) error {
	count, err := s.store.Count(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"status": "degraded"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "ok",
		"events":  count,
		"clients": s.gateway.ClientCount(),
	})
}
