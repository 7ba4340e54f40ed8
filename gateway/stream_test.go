package gateway

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/laf/worker"
)

// newTestMux wires just the status-stream route, the way
// Server.installRoutes wires it alongside the rest of the gateway's routes.
func newTestMux(s *Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/status/", s.handleStatusStream)
	return mux
}

func TestHandleStatusStreamRelaysUntilDone(t *testing.T) {
	s := &Server{
		Tasks:  worker.NewTaskStore(),
		Logger: slog.Default(),
	}
	httpMux := newTestMux(s)
	ts := httptest.NewServer(httpMux)
	defer ts.Close()

	s.Tasks.Accept("rq-1")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/status/rq-1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		s.Tasks.Complete("rq-1", 200, map[string]any{"ok": true})
	}()

	var frame map[string]any
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("reading frame: %v", err)
		}
		if frame["topic"] != "rq-1" {
			t.Fatalf("unexpected topic: %v", frame["topic"])
		}
		body, _ := frame["body"].(map[string]any)
		if body != nil && body["ok"] == true {
			break
		}
	}
}

func TestHandleStatusStreamUnknownRqidWaits(t *testing.T) {
	s := &Server{
		Tasks:  worker.NewTaskStore(),
		Logger: slog.Default(),
	}
	httpMux := newTestMux(s)
	ts := httptest.NewServer(httpMux)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/status/missing/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var frame map[string]any
	err = conn.ReadJSON(&frame)
	require.Error(t, err, "expected no frame for an rqid that never appears")
}
