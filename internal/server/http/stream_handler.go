package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"ship/internal/ship/ports"
)

const (
	sseHeartbeatInterval = 30 * time.Second
	wsWriteTimeout       = 10 * time.Second
)

// handleSSE streams the session's events as Server-Sent Events: replay
// buffer first, then live events. The stream ends after the done event.
func (s *Server) handleSSE(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := s.orchestrator.Status(c.Request.Context(), sessionID); err != nil {
		s.renderSessionError(c, err)
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events, cancel := s.orchestrator.Subscribe(sessionID)
	defer cancel()

	s.logger.Info("SSE stream opened for session %s", sessionID)

	if _, err := fmt.Fprintf(w, "event: connected\ndata: {\"session_id\":%q}\n\n", sessionID); err != nil {
		return
	}
	w.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := renderEvent(event)
			if err != nil {
				s.logger.Error("Failed to serialize %s event: %v", event.EventType(), err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.EventType(), data); err != nil {
				return
			}
			w.Flush()
			if event.EventType() == "done" {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			w.Flush()
		case <-c.Request.Context().Done():
			s.logger.Info("SSE stream closed for session %s", sessionID)
			return
		}
	}
}

// handleWebSocket streams the same event envelopes over a WebSocket. The
// server closes the socket after the done event.
func (s *Server) handleWebSocket(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := s.orchestrator.Status(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, ports.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed for session %s: %v", sessionID, err)
		return
	}
	defer func() { _ = conn.Close() }()

	events, cancel := s.orchestrator.Subscribe(sessionID)
	defer cancel()

	s.logger.Info("WebSocket opened for session %s", sessionID)

	// Reader goroutine: consume control frames and surface client close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := renderEvent(event)
			if err != nil {
				s.logger.Error("Failed to serialize %s event: %v", event.EventType(), err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			if event.EventType() == "done" {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished"))
				return
			}
		case <-closed:
			s.logger.Info("WebSocket closed by client for session %s", sessionID)
			return
		}
	}
}
