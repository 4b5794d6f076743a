package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	syncpkg "github.com/bakeable/homeassistant-whatsapp-gateway/internal/sync"
)

var progressUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleRefreshStream relays sync progress transitions to the caller as JSON
// text frames, starting with the coordinator's current snapshot so a client
// connecting mid-sync isn't left waiting for the next transition. Later
// transitions arrive only through the progress subscriber: a syncbus.Bus
// without a NATS connection delivers none, so the caller then receives the
// snapshot alone.
func (s *Server) handleRefreshStream(w http.ResponseWriter, r *http.Request) {
	if s.progress == nil {
		writeError(w, http.StatusServiceUnavailable, "sync progress stream is not available")
		return
	}

	conn, err := progressUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("api: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates := make(chan syncpkg.Progress, 8)
	unsubscribe, err := s.progress.Subscribe(func(p syncpkg.Progress) {
		select {
		case updates <- p:
		default:
			// a slow reader drops intermediate frames rather than blocking
			// the publisher; the next transition still gets through.
		}
	})
	if err != nil {
		s.logger.Warn("api: sync progress subscribe failed", "error", err)
		return
	}
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(s.sync.Progress()); err != nil {
		return
	}

	for {
		select {
		case p := <-updates:
			if err := conn.WriteJSON(p); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
