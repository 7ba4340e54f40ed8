package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/GoCodeAlone/laf/metrics"
)

// Step is one journal state-machine transition, per §3 Journal entry.
type Step string

const (
	StepBegin   Step = "begin"
	StepAuth    Step = "auth"
	StepAuthOBO Step = "authobo"
	StepCommit  Step = "commit"
	StepAbort   Step = "abort"
)

// Entry is one journal record. Written at most once per (Rqid, Step).
type Entry struct {
	AuthUserID    string         `json:"authuser_id"`
	UserID        string         `json:"user_id"`
	Role          string         `json:"role"`
	RequestID     string         `json:"request_id"`
	TransactionID string         `json:"transaction_id"`
	Step          Step           `json:"step"`
	Host          string         `json:"host"`
	LoneFamily    string         `json:"lonefam"`
	Lone          string         `json:"lone"`
	Verb          string         `json:"verb"`
	LonePK        *string        `json:"lonepk"`
	Payload       any            `json:"payload,omitempty"`
	Date          time.Time      `json:"date"`
	CM            string         `json:"cm,omitempty"`
}

// JournalClient writes entries to the external journal daemon over
// http+unix. Writing is best-effort: a failure is logged and dropped, never
// propagated to the request lifecycle.
type JournalClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Collector // nil disables journal-failure recording
}

// NewJournalClient creates a client bound to a unix-domain socket path.
func NewJournalClient(socketPath string, logger *slog.Logger) *JournalClient {
	return &JournalClient{httpClient: unixHTTPClient(socketPath), logger: logger}
}

// EnableMetrics wires c into the client for journal-write-failure recording.
func (c *JournalClient) EnableMetrics(m *metrics.Collector) { c.metrics = m }

// Write POSTs one journal entry to /<txid>/<step>. Failures are logged at
// error level and dropped — journaling never blocks or fails a request.
func (c *JournalClient) Write(ctx context.Context, entry Entry) {
	if entry.Date.IsZero() {
		entry.Date = time.Now().UTC()
	}

	body, err := json.Marshal(entry)
	if err != nil {
		c.logger.Error("marshaling journal entry", "error", err, "rqid", entry.RequestID)
		c.recordFailure(entry.Step)
		return
	}

	url := fmt.Sprintf("http://unix/%s/%s", entry.TransactionID, entry.Step)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("building journal request", "error", err, "rqid", entry.RequestID)
		c.recordFailure(entry.Step)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("journal write failed", "error", err, "rqid", entry.RequestID, "step", entry.Step)
		c.recordFailure(entry.Step)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.logger.Error("journal write rejected", "status", resp.StatusCode, "rqid", entry.RequestID, "step", entry.Step)
		c.recordFailure(entry.Step)
	}
}

func (c *JournalClient) recordFailure(step Step) {
	if c.metrics != nil {
		c.metrics.RecordJournalFailure(string(step))
	}
}
