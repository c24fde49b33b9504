// Package metrics holds the Prometheus collectors exported on /metrics.
//
// All metrics are prefixed with "docchat_". Every method is safe on a nil
// *Metrics, so components can be built without instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	// OutcomeCompletionFailed is a chat turn answered with an LLM error reply.
	OutcomeCompletionFailed = "completion_failed"
)

// Metrics is the set of docchat collectors.
type Metrics struct {
	registry *prometheus.Registry

	UploadsTotal        *prometheus.CounterVec
	ChunksIndexedTotal  prometheus.Counter
	IndexedVectors      prometheus.Gauge
	ChatTurnsTotal      *prometheus.CounterVec
	CompletionFailures  prometheus.Counter
	CompletionDuration  prometheus.Histogram
	RetrievalHits       prometheus.Histogram
	RetrievalDriftTotal *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimitedTotal    *prometheus.CounterVec
	InboxFilesTotal     *prometheus.CounterVec
}

// New creates the collectors on a fresh registry that also carries the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		UploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docchat_uploads_total",
			Help: "Document uploads by outcome",
		}, []string{"outcome"}),

		ChunksIndexedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "docchat_chunks_indexed_total",
			Help: "Chunks embedded and committed to the index",
		}),

		IndexedVectors: f.NewGauge(prometheus.GaugeOpts{
			Name: "docchat_indexed_vectors",
			Help: "Vectors in the live index generation",
		}),

		ChatTurnsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docchat_chat_turns_total",
			Help: "Chat turns by outcome",
		}, []string{"outcome"}),

		CompletionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "docchat_completion_failures_total",
			Help: "Completion calls that ended in an LLM error reply",
		}),

		CompletionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "docchat_completion_duration_seconds",
			Help:    "Latency of completion calls",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		RetrievalHits: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "docchat_retrieval_passages",
			Help:    "Passages returned per retrieval",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 10},
		}),

		RetrievalDriftTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docchat_retrieval_drift_total",
			Help: "Search hits skipped because metadata or chunk text was missing",
		}, []string{"reason"}),

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docchat_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),

		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docchat_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		RateLimitedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docchat_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter",
		}, []string{"route"}),

		InboxFilesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docchat_inbox_files_total",
			Help: "Files picked up from the inbox by outcome",
		}, []string{"outcome"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordUpload counts an upload and the chunks it indexed.
func (m *Metrics) RecordUpload(outcome string, chunks int) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(outcome).Inc()
	if chunks > 0 {
		m.ChunksIndexedTotal.Add(float64(chunks))
	}
}

// SetIndexedVectors publishes the live index size.
func (m *Metrics) SetIndexedVectors(n int) {
	if m == nil {
		return
	}
	m.IndexedVectors.Set(float64(n))
}

// RecordChatTurn counts a chat turn.
func (m *Metrics) RecordChatTurn(outcome string) {
	if m == nil {
		return
	}
	m.ChatTurnsTotal.WithLabelValues(outcome).Inc()
}

// RecordCompletion observes one completion call.
func (m *Metrics) RecordCompletion(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.CompletionDuration.Observe(d.Seconds())
	if failed {
		m.CompletionFailures.Inc()
	}
}

// RecordRetrieval observes how many passages a retrieval produced.
func (m *Metrics) RecordRetrieval(passages int) {
	if m == nil {
		return
	}
	m.RetrievalHits.Observe(float64(passages))
}

// RecordDrift counts a skipped search hit.
func (m *Metrics) RecordDrift(reason string) {
	if m == nil {
		return
	}
	m.RetrievalDriftTotal.WithLabelValues(reason).Inc()
}

// RecordHTTP observes a served request.
func (m *Metrics) RecordHTTP(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordRateLimited counts a rejected request.
func (m *Metrics) RecordRateLimited(route string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(route).Inc()
}

// RecordInboxFile counts a processed inbox file.
func (m *Metrics) RecordInboxFile(outcome string) {
	if m == nil {
		return
	}
	m.InboxFilesTotal.WithLabelValues(outcome).Inc()
}
