// Package metrics wraps the framework's Prometheus counters and histograms:
// requests by (lone, verb, status), broker busy-rejections, worker pool
// size, and journal-write failures.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns one Prometheus registry and the metric vectors this
// framework records against. A process constructs exactly one Collector and
// shares it between its gateway/broker components.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	BusyRejections   *prometheus.CounterVec
	WorkerPoolSize   *prometheus.GaugeVec
	JournalFailures  *prometheus.CounterVec
}

// New creates a Collector with its own registry, so multiple families in the
// same process never collide on metric names.
func New() *Collector {
	reg := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "laf_requests_total",
		Help: "Total number of requests handled, by lone/verb/status.",
	}, []string{"lone", "verb", "status"})

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "laf_request_duration_seconds",
		Help:    "Duration of request handling, by lone/verb.",
		Buckets: prometheus.DefBuckets,
	}, []string{"lone", "verb"})

	busyRejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "laf_broker_busy_rejections_total",
		Help: "Requests rejected with 503 because no worker was idle, by family.",
	}, []string{"family"})

	workerPoolSize := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "laf_broker_worker_pool_size",
		Help: "Number of workers currently registered with the broker, by family.",
	}, []string{"family"})

	journalFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "laf_journal_write_failures_total",
		Help: "Journal writes that failed or were dropped, by step.",
	}, []string{"step"})

	reg.MustRegister(requestsTotal, requestDuration, busyRejections, workerPoolSize, journalFailures)

	return &Collector{
		registry:        reg,
		RequestsTotal:   requestsTotal,
		RequestDuration: requestDuration,
		BusyRejections:  busyRejections,
		WorkerPoolSize:  workerPoolSize,
		JournalFailures: journalFailures,
	}
}

// Handler returns an http.Handler serving this Collector's metrics in the
// Prometheus exposition format, for mounting at e.g. /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one completed request's outcome and latency.
func (c *Collector) RecordRequest(lone, verb string, status int, duration time.Duration) {
	c.RequestsTotal.WithLabelValues(lone, verb, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(lone, verb).Observe(duration.Seconds())
}

// RecordBusyRejection records a 503 "Try again server busy" admission-control
// rejection for the given family.
func (c *Collector) RecordBusyRejection(family string) {
	c.BusyRejections.WithLabelValues(family).Inc()
}

// SetWorkerPoolSize publishes the current worker count for a family.
func (c *Collector) SetWorkerPoolSize(family string, size int) {
	c.WorkerPoolSize.WithLabelValues(family).Set(float64(size))
}

// RecordJournalFailure records a dropped or failed journal write at the given step.
func (c *Collector) RecordJournalFailure(step string) {
	c.JournalFailures.WithLabelValues(step).Inc()
}
