package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewCollector(t *testing.T) {
	c := New()
	if c.registry == nil {
		t.Fatal("expected registry to be initialized")
	}
}

func TestCollectorRecordRequest(t *testing.T) {
	c := New()
	c.RecordRequest("account", "create", 201, 12*time.Millisecond)
	c.RecordRequest("account", "create", 500, 3*time.Millisecond)
}

func TestCollectorRecordBusyRejection(t *testing.T) {
	c := New()
	c.RecordBusyRejection("account")
	c.RecordBusyRejection("account")
}

func TestCollectorSetWorkerPoolSize(t *testing.T) {
	c := New()
	c.SetWorkerPoolSize("account", 4)
	c.SetWorkerPoolSize("account", 3)
}

func TestCollectorRecordJournalFailure(t *testing.T) {
	c := New()
	c.RecordJournalFailure("pre")
}

func TestCollectorHandler(t *testing.T) {
	c := New()
	c.RecordRequest("account", "create", 201, 10*time.Millisecond)
	c.RecordBusyRejection("account")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	body, _ := io.ReadAll(rec.Body)
	bodyStr := string(body)

	if !strings.Contains(bodyStr, "laf_requests_total") {
		t.Error("expected metrics output to contain laf_requests_total")
	}
	if !strings.Contains(bodyStr, "laf_broker_busy_rejections_total") {
		t.Error("expected metrics output to contain laf_broker_busy_rejections_total")
	}
}

func TestCollectorsAreIsolated(t *testing.T) {
	a := New()
	b := New()
	a.RecordBusyRejection("account")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, req)

	body, _ := io.ReadAll(rec.Body)
	if strings.Contains(string(body), `laf_broker_busy_rejections_total{family="account"} 1`) {
		t.Error("expected collector b's registry not to see collector a's recordings")
	}
}
