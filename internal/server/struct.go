package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/raga-go/internal/agent"
	"github.com/54b3r/raga-go/internal/ingestion"
	"github.com/54b3r/raga-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover a full ingestion batch.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// RequestTimeout bounds POST /api/query and GET /api/suggestions.
	// Zero disables the bound.
	RequestTimeout time.Duration
	// MaxBodyBytes caps request bodies. Defaults to 10 MiB.
	MaxBodyBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Metrics receives request and query metrics. If nil, a set registered
	// with MetricsRegistry is created.
	Metrics *Metrics
	// MetricsRegistry defaults to prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer serves /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
	// Tools are served under /api/tools. Tools that are not invokable are
	// ignored.
	Tools []tool.BaseTool
}

// querier answers and suggests questions. *agent.Orchestrator satisfies it;
// tests inject a fake.
type querier interface {
	Query(ctx context.Context, query string) (*agent.QueryResponse, error)
	Suggest(ctx context.Context) ([]agent.Suggestion, error)
}

// ingester writes and removes documents. *ingestion.Pipeline satisfies it.
type ingester interface {
	Ingest(ctx context.Context, docs []ingestion.Document, progress func(msg string)) ingestion.Report
	Delete(ctx context.Context, name string) error
}

// documentLister lists registered documents. store.DocumentRegistry satisfies it.
type documentLister interface {
	List(ctx context.Context) ([]store.Document, error)
}

// Server is the HTTP server in front of the orchestrator and the ingestion
// pipeline.
type Server struct {
	querier  querier
	ingester ingester
	// documents is nil when the registry is disabled.
	documents documentLister
	cfg       *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	log        *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	metrics *Metrics
	tools   []tool.InvokableTool
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	Query string `json:"query"`
}

// queryResponse is the JSON response for POST /api/query.
type queryResponse struct {
	*agent.QueryResponse
	DurationMS int64 `json:"duration_ms"`
}

// ingestRequest is the JSON body for POST /api/documents.
type ingestRequest struct {
	Documents []ingestion.Document `json:"documents"`
}

// ingestResponse is the JSON response for POST /api/documents.
type ingestResponse struct {
	// Processed lists the ingested document ids in request order.
	Processed []string `json:"processed"`
	// Failed maps document ids to their failure reason.
	Failed map[string]string `json:"failed"`
}

// documentsResponse is the JSON response for GET /api/documents.
type documentsResponse struct {
	Documents map[string]string `json:"documents"`
}

// suggestionsResponse is the JSON response for GET /api/suggestions.
type suggestionsResponse struct {
	Suggestions []agent.Suggestion `json:"suggestions"`
}

// Error kinds produced by middleware before any handler runs. They have no
// apperr counterpart.
const (
	kindRateLimited  = "rate_limited"
	kindUnauthorized = "unauthorized"
)

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	// Tool names the handler that was attempted, if routing got that far.
	Tool string `json:"tool"`
	// Rationale and MatchedPattern carry the routing decision of a failed
	// query.
	Rationale      string `json:"rationale,omitempty"`
	MatchedPattern string `json:"matched_pattern,omitempty"`
}
