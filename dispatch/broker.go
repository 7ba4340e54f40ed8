package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/GoCodeAlone/laf/metrics"
	"github.com/GoCodeAlone/laf/worker"
)

// BusyPayload is the body synthesized when no worker is idle.
type BusyPayload struct {
	Status string `json:"status"`
}

// DeathPayload is the body synthesized when a worker dies mid-request.
type DeathPayload struct {
	Resp struct {
		Status string `json:"status"`
	} `json:"resp"`
	Code int `json:"code"`
}

// NewDeathReply builds the {resp:{status:"internal server error"}, code:500}
// payload sent to a client whose worker died mid-request.
func NewDeathReply() DeathPayload {
	d := DeathPayload{Code: 500}
	d.Resp.Status = "internal server error"
	return d
}

// WorkerSpawner starts and supervises worker processes. It is a thin wrapper
// over os/exec so tests can substitute a fake command.
type WorkerSpawner struct {
	Command func(ctx context.Context, env []string) *exec.Cmd
}

// Broker is the owned, non-singleton router between the gateway's frontend
// subject and the worker pool's backend subjects. One Broker is constructed
// by main and closed over by the process's signal handler.
type Broker struct {
	nc      *nats.Conn
	family  string
	table   *Table
	logger  *slog.Logger
	spawner *WorkerSpawner
	baseEnv []string
	metrics *metrics.Collector // nil disables busy-rejection/pool-size recording

	mu      sync.Mutex
	workers map[string]*exec.Cmd
	subs    []*nats.Subscription

	redisMu sync.Mutex
	redis   *RedisMirror // nil disables the multi-broker assignment-table mirror
}

// EnableMetrics wires c into the broker for busy-rejection and worker-pool-
// size recording.
func (b *Broker) EnableMetrics(c *metrics.Collector) { b.metrics = c }

// NewBroker creates a Broker bound to nc, scoped to one family. baseEnv is
// the environment template used to (re)spawn workers.
func NewBroker(nc *nats.Conn, family string, spawner *WorkerSpawner, baseEnv []string, logger *slog.Logger) *Broker {
	return &Broker{
		nc:      nc,
		family:  family,
		table:   NewTable(),
		logger:  logger,
		spawner: spawner,
		baseEnv: baseEnv,
		workers: make(map[string]*exec.Cmd),
	}
}

func (b *Broker) frontendSubject() string { return fmt.Sprintf("laf.%s.frontend", b.family) }
func (b *Broker) backendSubject(workerID string) string {
	return fmt.Sprintf("laf.%s.backend.%s", b.family, workerID)
}
func (b *Broker) registerSubject() string { return fmt.Sprintf("laf.%s.register", b.family) }

// Run subscribes the broker's frontend and registration subjects and blocks
// until ctx is cancelled.
func (b *Broker) Run(ctx context.Context) error {
	regSub, err := b.nc.Subscribe(b.registerSubject(), b.handleRegister)
	if err != nil {
		return fmt.Errorf("subscribing to registration subject: %w", err)
	}
	frontSub, err := b.nc.Subscribe(b.frontendSubject(), b.handleFrontend)
	if err != nil {
		return fmt.Errorf("subscribing to frontend subject: %w", err)
	}
	b.subs = []*nats.Subscription{regSub, frontSub}

	<-ctx.Done()
	for _, s := range b.subs {
		_ = s.Unsubscribe()
	}
	return nil
}

// handleRegister processes a worker's READY frame: insert into the table and
// supervise its process for death detection.
func (b *Broker) handleRegister(msg *nats.Msg) {
	var reg struct {
		WorkerID string `json:"worker_id"`
	}
	if err := json.Unmarshal(msg.Data, &reg); err != nil {
		b.logger.Error("malformed worker registration", "error", err)
		return
	}
	b.table.Register(reg.WorkerID)
	b.logger.Info("worker registered", "worker_id", reg.WorkerID)
	if b.metrics != nil {
		b.metrics.SetWorkerPoolSize(b.family, b.table.Size())
	}
	b.mirrorReady(reg.WorkerID)
}

// handleFrontend processes an incoming client request: assign an idle
// worker or reply 503 immediately (admission control, not queuing).
func (b *Broker) handleFrontend(msg *nats.Msg) {
	clientID := uniqueClientID()
	workerID, ok := b.table.Assign(clientID)
	if !ok {
		if b.metrics != nil {
			b.metrics.RecordBusyRejection(b.family)
		}
		reply, _ := json.Marshal(worker.WireReply{Status: 503, Body: BusyPayload{Status: "Try again server busy"}})
		_ = msg.Respond(reply)
		return
	}

	go b.forwardToWorker(workerID, clientID, msg)
}

func (b *Broker) forwardToWorker(workerID, clientID string, msg *nats.Msg) {
	resp, err := b.nc.Request(b.backendSubject(workerID), msg.Data, 5*time.Minute)
	b.table.Release(workerID)
	if err != nil {
		b.logger.Error("worker request failed", "worker_id", workerID, "error", err)
		deathReply, _ := json.Marshal(worker.WireReply{Status: 500, Body: NewDeathReply()})
		_ = msg.Respond(deathReply)
		return
	}
	_ = msg.Respond(resp.Data)
}

// uniqueClientID is a process-local correlation id; NATS's own reply-subject
// addressing (msg.Reply) is the actual client identity carried end to end.
func uniqueClientID() string {
	return fmt.Sprintf("c-%d", time.Now().UnixNano())
}

// HandleWorkerDeath removes a dead worker from the table and, if it had an
// assigned client, reports that the caller must synthesize a death reply
// (the forwardToWorker goroutine already does this for the common case; this
// path covers supervised-process exits detected outside of an in-flight
// request, e.g. a crash between requests).
func (b *Broker) HandleWorkerDeath(workerID string) {
	clientID, hadClient := b.table.Remove(workerID)
	if hadClient {
		b.logger.Warn("worker died with assigned client", "worker_id", workerID, "client_id", clientID)
	}
	if b.metrics != nil {
		b.metrics.SetWorkerPoolSize(b.family, b.table.Size())
	}
	b.mirrorGone(workerID)
	b.respawn(workerID)
}

// Spawn starts and supervises a brand-new worker process, for building the
// initial pool at broker startup.
func (b *Broker) Spawn(workerID string) { b.startWorker(workerID) }

// respawn restarts a worker with the same environment and deployment,
// restoring pool size. Per SPEC_FULL.md §9 Open Questions item 1, it
// propagates NOTIFICATION_SOCK and JOURNAL_SOCK from the broker's own
// environment when set (fixing the original mistyped-env-dict bug by intent).
func (b *Broker) respawn(workerID string) { b.startWorker(workerID) }

func (b *Broker) startWorker(workerID string) {
	if b.spawner == nil {
		return
	}
	env := append([]string{}, b.baseEnv...)
	env = append(env, "LAF_WORKER_ID="+workerID)
	if v := os.Getenv("NOTIFICATION_SOCK"); v != "" {
		env = append(env, "NOTIFICATION_SOCK="+v)
	}
	if v := os.Getenv("JOURNAL_SOCK"); v != "" {
		env = append(env, "JOURNAL_SOCK="+v)
	}

	cmd := b.spawner.Command(context.Background(), env)
	if err := cmd.Start(); err != nil {
		b.logger.Error("starting worker", "worker_id", workerID, "error", err)
		return
	}

	b.mu.Lock()
	b.workers[workerID] = cmd
	b.mu.Unlock()

	go b.supervise(workerID, cmd)
}

// supervise waits on a worker process and reports its death to the broker.
func (b *Broker) supervise(workerID string, cmd *exec.Cmd) {
	err := cmd.Wait()
	b.logger.Warn("worker process exited", "worker_id", workerID, "error", err)
	b.HandleWorkerDeath(workerID)
}

// Table exposes the dispatch table for introspection (metrics, admin tooling).
func (b *Broker) Table() *Table { return b.table }
