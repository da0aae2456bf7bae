package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/mattjoyce/devdeck/internal/logbuf"
)

// handleLogStream handles the WebSocket at /api/ws/{id}. The client first
// receives every retained line, one text message each, then every new line
// until it disconnects. Restarts of the project keep the stream open.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sup.Project(id); err != nil {
		s.writeSupervisorError(w, err)
		return
	}
	buf := s.sup.LogBuffer(id)

	ws := websocket.Server{
		// Any origin may attach; access is decided by the bearer token.
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()
			s.logger.Debug("log stream opened", "project_id", id)
			streamLines(r.Context(), conn, buf, s.config.PollInterval)
			s.logger.Debug("log stream closed", "project_id", id)
		},
	}
	ws.ServeHTTP(w, r)
}

// streamLines sends buf to conn from cursor 0 until the peer goes away or
// ctx ends.
func streamLines(ctx context.Context, conn *websocket.Conn, buf *logbuf.Buffer, poll time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Inbound messages are ignored; a read error means the peer left.
	go func() {
		defer cancel()
		var discard string
		for {
			if err := websocket.Message.Receive(conn, &discard); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var cursor uint64
	for {
		// Take the wake channel before reading so an append between the
		// read and the select is never missed.
		changed := buf.Changed()
		lines, next := buf.Since(cursor)
		for _, line := range lines {
			if err := websocket.Message.Send(conn, line); err != nil {
				return
			}
		}
		cursor = next

		select {
		case <-ctx.Done():
			return
		case <-changed:
		case <-ticker.C:
		}
	}
}
