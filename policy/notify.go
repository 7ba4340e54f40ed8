package policy

import (
	"encoding/json"
	"log/slog"
	"net"
	"time"
)

// Notifier publishes best-effort status notifications keyed by transaction
// id. StreamNotifier and KafkaNotifier implement it; the worker runtime
// holds them through its own worker.Notifier interface.
type Notifier interface {
	Notify(txid string, body any)
}

// StreamNotifier publishes over the length-prefixed SOCK_STREAM protocol,
// topic = txid, body = JSON. Failure is silent, per §4.G.
type StreamNotifier struct {
	SocketPath string
	logger     *slog.Logger
}

// NewStreamNotifier creates a StreamNotifier bound to a unix-domain stream socket.
func NewStreamNotifier(socketPath string, logger *slog.Logger) *StreamNotifier {
	return &StreamNotifier{SocketPath: socketPath, logger: logger}
}

// Notify sends {topic: txid, body: ...} as a single length-prefixed frame.
// Any failure is swallowed silently, matching the spec's notification
// best-effort contract exactly (unlike journaling, not even logged).
func (n *StreamNotifier) Notify(txid string, body any) {
	conn, err := net.DialTimeout("unix", n.SocketPath, 2*time.Second)
	if err != nil {
		return
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))

	payload, err := json.Marshal(map[string]any{"topic": txid, "body": body})
	if err != nil {
		return
	}
	_ = writeFrame(conn, payload)
}
