// Package wsapi pushes the driveboard's status line to connected
// WebSocket clients every 200ms, using nhooyr.io/websocket, the
// read-only status push transport.
package wsapi

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

// StatusSource supplies the text the push loop writes, in the style of
// the front-end's own "?" status response.
type StatusSource interface {
	StatusLine() string
}

// PushInterval is how often a connected client receives a status frame.
const PushInterval = 200 * time.Millisecond

// Server accepts WebSocket connections and streams status frames.
type Server struct {
	source StatusSource
}

// New creates a Server bound to a status source.
func New(source StatusSource) *Server {
	return &Server{source: source}
}

// ServeHTTP upgrades the connection and pushes a status frame every
// PushInterval until the client disconnects or the request context is
// canceled.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ctx := r.Context()
	ticker := time.NewTicker(PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "done")
			return
		case <-ticker.C:
			writeCtx, cancel := context.WithTimeout(ctx, PushInterval)
			err := conn.Write(writeCtx, websocket.MessageText, []byte(s.source.StatusLine()))
			cancel()
			if err != nil {
				return
			}
		}
	}
}
