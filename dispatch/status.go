package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/GoCodeAlone/laf/worker"
)

// statusFrame is the wire shape published on a family's status subject when
// a long-running task reaches a terminal state.
type statusFrame struct {
	Code    int `json:"code"`
	Payload any `json:"payload"`
}

func statusSubject(family, rqid string) string {
	return fmt.Sprintf("laf.%s.status.%s", family, rqid)
}

// StatusPublisher is the worker-side half of cross-process task-status
// propagation: worker.Runtime.AcceptAndRun's goroutine publishes a task's
// terminal outcome here so any gateway process, not only the one whose
// dispatch happened to run it, can answer /status/<rqid> for it. Without
// this, the gateway's Server.Tasks and the worker's Runtime.Tasks are two
// disconnected in-memory maps in two separate OS processes.
type StatusPublisher struct {
	nc     *nats.Conn
	family string
}

// NewStatusPublisher creates a StatusPublisher bound to nc for one family.
func NewStatusPublisher(nc *nats.Conn, family string) *StatusPublisher {
	return &StatusPublisher{nc: nc, family: family}
}

// PublishStatus publishes rqid's terminal outcome to laf.<family>.status.<rqid>.
// Best-effort: a marshal or publish failure is silently dropped, same as the
// rest of the dispatch fabric's fire-and-forget registration traffic.
func (p *StatusPublisher) PublishStatus(rqid string, code int, payload any) {
	data, err := json.Marshal(statusFrame{Code: code, Payload: payload})
	if err != nil {
		return
	}
	_ = p.nc.Publish(statusSubject(p.family, rqid), data)
}

// SubscribeStatus subscribes to every status notification published for
// family and completes the matching task in store as each arrives. A gateway
// calls this once at startup so its Server.Tasks reflects completions that
// happened inside a separate laf-worker process.
func SubscribeStatus(nc *nats.Conn, family string, store *worker.TaskStore) (*nats.Subscription, error) {
	prefix := statusSubject(family, "")
	sub, err := nc.Subscribe(prefix+"*", func(msg *nats.Msg) {
		rqid := strings.TrimPrefix(msg.Subject, prefix)
		var frame statusFrame
		if err := json.Unmarshal(msg.Data, &frame); err != nil {
			return
		}
		store.Complete(rqid, frame.Code, frame.Payload)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to status subject: %w", err)
	}
	return sub, nil
}
