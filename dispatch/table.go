// Package dispatch implements the broker↔worker dispatch fabric: a
// load-balanced router between the HTTP gateway and a pool of resource-
// handler workers, per §4.E.
package dispatch

import "sync"

// Table is the broker's dispatch table: worker_id -> assigned client id, or
// "" when idle. Safe for concurrent use: the broker mutates it from its NATS
// subscription handlers, its per-request forwarding goroutines, and its
// worker-supervision goroutines, all under mu.
//
// Invariants:
//  1. only workers that have sent READY appear in the table;
//  2. a worker with a non-empty client id has been forwarded exactly one
//     request and no other will be scheduled to it until it replies or dies;
//  3. when a worker dies with a non-empty client id, an internal-error reply
//     is synthesized to that client by the caller.
type Table struct {
	mu      sync.Mutex
	order   []string          // insertion order of worker ids, for LRU-ish idle scan
	clients map[string]string // worker_id -> client id ("" means idle)
}

// NewTable creates an empty dispatch table.
func NewTable() *Table {
	return &Table{clients: make(map[string]string)}
}

// Register inserts worker -> idle into the table, per "On startup a worker
// sends READY". Re-registering an already-known worker is a no-op.
func (t *Table) Register(workerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.clients[workerID]; ok {
		return
	}
	t.clients[workerID] = ""
	t.order = append(t.order, workerID)
}

// Remove deletes a worker from the table (worker death) and reports the
// client id it had been assigned, if any.
func (t *Table) Remove(workerID string) (clientID string, hadClient bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	clientID, existed := t.clients[workerID]
	if !existed {
		return "", false
	}
	delete(t.clients, workerID)
	for i, id := range t.order {
		if id == workerID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return clientID, clientID != ""
}

// Assign scans the table in insertion order for an idle worker, assigns it
// to clientID, and returns its id. ok is false when every worker is busy
// (admission control, not queuing — §4.E).
func (t *Table) Assign(clientID string) (workerID string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.order {
		if t.clients[id] == "" {
			t.clients[id] = clientID
			return id, true
		}
	}
	return "", false
}

// Release marks a worker idle again after it has replied, re-adding it to
// the idle set. The broker calls it once the worker's reply (or a request
// error) arrives; the worker sends no separate READY frame per request.
func (t *Table) Release(workerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.clients[workerID]; ok {
		t.clients[workerID] = ""
	}
}

// Size returns the number of registered workers.
func (t *Table) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// Idle returns the number of currently-idle workers.
func (t *Table) Idle() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.clients {
		if c == "" {
			n++
		}
	}
	return n
}
