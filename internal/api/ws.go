// v0
// internal/api/ws.go
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 5 * time.Second

// dashboardWS streams frames to a browser client. The latest frame goes out
// immediately so a fresh tab paints without waiting for the next update.
func (s *Server) dashboardWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "err", err)
		return
	}
	s.met.WSClients.Inc()
	defer s.met.WSClients.Dec()
	defer conn.Close()

	frames, unsub := s.eng.Subscribe()
	defer unsub()

	// Drain reads so pings and the eventual close frame are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(s.eng.Frame()); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(f); err != nil {
				s.log.Debug("dashboard client dropped", "err", err)
				return
			}
		}
	}
}
