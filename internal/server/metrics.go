package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "raga"

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the logical endpoint name rather than the raw URL path.
	labelHandler = "handler"
)

// Metrics holds every Prometheus metric raga exports. It also implements the
// orchestrator and ingestion observers and the retry hook, so one instance
// is created at startup and shared by all components.
type Metrics struct {
	// queriesTotal counts queries by tool and status (completed|failed).
	queriesTotal *prometheus.CounterVec

	// queryDurationSeconds records end-to-end query latency by tool.
	queryDurationSeconds *prometheus.HistogramVec

	// retrievalResults records the size of each context bundle.
	retrievalResults prometheus.Histogram

	// ingestedDocumentsTotal counts ingested documents by status.
	ingestedDocumentsTotal *prometheus.CounterVec

	// ingestedChunksTotal counts chunks written to the index.
	ingestedChunksTotal prometheus.Counter

	// retryAttemptsTotal counts retries by operation name.
	retryAttemptsTotal *prometheus.CounterVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// NewMetrics registers all metrics against reg and returns them.
// promauto.With(reg) is used so that each call registers into the provided
// registry rather than the global default, which keeps unit tests hermetic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of queries, partitioned by routed tool and status.",
		}, []string{"tool", "status"}),

		queryDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "End-to-end query latency by routed tool.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"tool"}),

		retrievalResults: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "results",
			Help:      "Number of snippets in each retrieved context bundle.",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}),

		ingestedDocumentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total number of documents processed by the ingestion pipeline, by status.",
		}, []string{"status"}),

		ingestedChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Total number of chunks written to the index.",
		}),

		retryAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Total number of retried calls to external services, by operation.",
		}, []string{"operation"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// ObserveQuery records one finished query.
func (m *Metrics) ObserveQuery(tool, status string, d time.Duration) {
	m.queriesTotal.WithLabelValues(tool, status).Inc()
	m.queryDurationSeconds.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveRetrieval records the size of a context bundle.
func (m *Metrics) ObserveRetrieval(results int) {
	m.retrievalResults.Observe(float64(results))
}

// ObserveIngest records one processed document.
func (m *Metrics) ObserveIngest(status string, chunks int) {
	m.ingestedDocumentsTotal.WithLabelValues(status).Inc()
	m.ingestedChunksTotal.Add(float64(chunks))
}

// OnRetry matches retry.Policy.OnRetry.
func (m *Metrics) OnRetry(op string, _ int, _ error, _ time.Duration) {
	m.retryAttemptsTotal.WithLabelValues(op).Inc()
}

// instrument wraps next with request counting and latency under the given
// handler label.
func (m *Metrics) instrument(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*responseWriter)
		if !ok {
			rw = &responseWriter{ResponseWriter: w, status: http.StatusOK}
		}
		start := time.Now()
		next.ServeHTTP(rw, r)
		m.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
	})
}
