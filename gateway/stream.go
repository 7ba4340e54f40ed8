package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GoCodeAlone/laf/worker"
)

// upgrader allows cross-origin status-stream connections; the status stream
// carries no more than the already-public polling endpoint exposes.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStatusStream upgrades GET /status/<rqid>/stream to a websocket and
// relays the same {"topic": rqid, "body": ...} notification frames the
// CLI's unix-socket subscriber receives, polling the task store until the
// long-running request reaches a terminal state.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	rqid := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/status/"), "/stream")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.Warn("status stream upgrade failed", "error", err, "rqid", rqid)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			rec, ok := s.Tasks.Lookup(rqid)
			if !ok {
				continue
			}
			frame := map[string]any{"topic": rqid, "body": rec.Payload}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
			if rec.Status != worker.TaskProcessing {
				return
			}
		}
	}
}
