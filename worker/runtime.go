package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/GoCodeAlone/laf/envelope"
)

// WireRequest is the JSON envelope the HTTP Gateway sends over the frontend
// subject and the broker forwards unmodified to a worker's backend subject.
type WireRequest struct {
	Request *envelope.Request `json:"request"`
}

// WireReply is the JSON envelope a worker sends back.
type WireReply struct {
	Status  int `json:"status"`
	Body    any `json:"body"`
	// Location is set for a 202 long-running acceptance, per §4.D.
	Location string `json:"location,omitempty"`
}

// Process runs a single inbound wire request through the state machine and
// produces the wire reply, handling the long-running 202-accept branch.
func (rt *Runtime) Process(ctx context.Context, wire WireRequest) WireReply {
	req := wire.Request
	req.ResolveIdentity()

	if rt.IsLongRunning(req) {
		rt.AcceptAndRun(ctx, req)
		return WireReply{
			Status:   202,
			Location: fmt.Sprintf("/status/%s", req.Rqid),
		}
	}

	rp := rt.Handle(ctx, req)
	return WireReply{Status: rp.StatusCode(), Body: statusPayload(rp)}
}

// RunLoop connects to nc, registers this worker's id on the broker's
// registration subject, and serves requests on its own backend subject until
// ctx is cancelled. This is the worker-side half of the dispatch fabric:
// receiving the three-part (client_addr, empty, request) message is modeled
// as a single NATS request whose Reply subject is the broker's correlation
// channel back to the client.
func (rt *Runtime) RunLoop(ctx context.Context, nc *nats.Conn, family, workerID string) error {
	backendSubject := fmt.Sprintf("laf.%s.backend.%s", family, workerID)
	sub, err := nc.Subscribe(backendSubject, func(msg *nats.Msg) {
		var wire WireRequest
		if err := json.Unmarshal(msg.Data, &wire); err != nil {
			rt.Logger.Error("malformed wire request", "error", err, "worker_id", workerID)
			errReply, _ := json.Marshal(WireReply{Status: 500, Body: err.Error()})
			_ = msg.Respond(errReply)
			return
		}
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		wireReply := rt.Process(reqCtx, wire)
		data, err := json.Marshal(wireReply)
		if err != nil {
			rt.Logger.Error("marshaling wire reply", "error", err, "worker_id", workerID)
			return
		}
		_ = msg.Respond(data)
	})
	if err != nil {
		return fmt.Errorf("subscribing to backend subject: %w", err)
	}
	defer sub.Unsubscribe()

	if err := rt.register(nc, family, workerID); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

func (rt *Runtime) register(nc *nats.Conn, family, workerID string) error {
	payload, err := json.Marshal(map[string]string{"worker_id": workerID})
	if err != nil {
		return err
	}
	return nc.Publish(fmt.Sprintf("laf.%s.register", family), payload)
}
