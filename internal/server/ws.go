package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// wsInterval is the snapshot streaming cadence.
const wsInterval = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleMetricsWS handles GET /api/metrics/ws — upgrade the connection and
// stream one snapshot per second until the client goes away.
func (s *Server) handleMetricsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// Drain client frames so pings and close frames are processed. The
	// stream is one-way; any read error ends the session.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsInterval)
	defer ticker.Stop()

	if err := conn.WriteJSON(s.snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.snapshot()); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket write error: %v", err)
				}
				return
			}
		}
	}
}
