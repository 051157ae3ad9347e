// Package server implements the HTTP API in front of the query orchestrator
// and the ingestion pipeline. The server is started by the `raga serve`
// CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/raga-go/internal/agent"
	"github.com/54b3r/raga-go/internal/apperr"
	"github.com/54b3r/raga-go/internal/ingestion"
	"github.com/54b3r/raga-go/internal/logging"
	"github.com/54b3r/raga-go/internal/store"
)

// defaultMaxBodyBytes caps request bodies when Config.MaxBodyBytes is zero.
const defaultMaxBodyBytes = 10 << 20

// New constructs a Server. documents may be nil when the registry is disabled.
func New(orch *agent.Orchestrator, pipeline *ingestion.Pipeline, documents store.DocumentRegistry, cfg *Config) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("server: orchestrator must not be nil")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("server: ingestion pipeline must not be nil")
	}
	var lister documentLister
	if documents != nil {
		lister = documents
	}
	return newServer(orch, pipeline, lister, cfg), nil
}

func newServer(q querier, ing ingester, docs documentLister, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(cfg.MetricsRegistry)
	}

	s := &Server{
		querier:   q,
		ingester:  ing,
		documents: docs,
		cfg:       cfg,
		log:       cfg.Logger,
		pingers:   cfg.Pingers,
		metrics:   cfg.Metrics,
		tools:     invokable(cfg.Tools),
	}

	rl := newRateLimiter(cfg.RateLimit, cfg.RateBurst, 0)

	if cfg.APIKey == "" {
		s.log.Warn("server: RAGA_API_KEY is not set, API authentication is disabled")
	}

	mux := http.NewServeMux()
	// protected wraps an API handler with auth, rate limiting and the body cap.
	protected := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(limitBody(cfg.MaxBodyBytes, h)))
	}
	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, s.metrics.instrument(name, h))
	}

	route("POST /api/query", "query", protected(s.handleQuery))
	route("GET /api/documents", "documents_list", protected(s.handleListDocuments))
	route("POST /api/documents", "documents_ingest", protected(s.handleIngest))
	route("DELETE /api/documents/{id}", "documents_delete", protected(s.handleDeleteDocument))
	route("GET /api/suggestions", "suggestions", protected(s.handleSuggestions))
	route("GET /api/tools", "tools_list", protected(s.handleListTools))
	route("POST /api/tools/{name}", "tools_run", protected(s.handleRunTool))
	route("GET /api/health", "health", http.HandlerFunc(s.handleHealth))
	route("GET /api/ready", "ready", http.HandlerFunc(s.handleReady))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.log.Info("server stopped")
		return nil
	}
}

// handleQuery handles POST /api/query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(r.Context(), w, apperr.New(apperr.KindValidation, "query is required"))
		return
	}

	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	resp, err := s.querier.Query(ctx, req.Query)
	if err != nil {
		status, body := errorBody(r.Context(), err)
		if resp != nil {
			body.Rationale = resp.Rationale
			body.MatchedPattern = resp.MatchedPattern
		}
		writeJSON(r.Context(), w, status, body)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, queryResponse{QueryResponse: resp, DurationMS: resp.Duration.Milliseconds()})
}

// handleIngest handles POST /api/documents. Partial failure is reported in
// the body with status 200; only a malformed request fails as a whole.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 {
		writeError(r.Context(), w, apperr.New(apperr.KindValidation, "documents must not be empty"))
		return
	}

	rep := s.ingester.Ingest(r.Context(), req.Documents, nil)
	out := ingestResponse{Processed: rep.Succeeded, Failed: make(map[string]string, len(rep.Failed))}
	for name, err := range rep.Failed {
		out.Failed[name] = err.Error()
	}
	writeJSON(r.Context(), w, http.StatusOK, out)
}

// handleListDocuments handles GET /api/documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.documents == nil {
		writeError(r.Context(), w, apperr.New(apperr.KindConfiguration, "document registry is disabled"))
		return
	}
	docs, err := s.documents.List(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	out := documentsResponse{Documents: make(map[string]string, len(docs))}
	for _, d := range docs {
		out.Documents[d.ID] = d.Content
	}
	writeJSON(r.Context(), w, http.StatusOK, out)
}

// handleDeleteDocument handles DELETE /api/documents/{id}.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if strings.TrimSpace(id) == "" {
		writeError(r.Context(), w, apperr.New(apperr.KindValidation, "document id is required"))
		return
	}
	if err := s.ingester.Delete(r.Context(), id); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSuggestions handles GET /api/suggestions.
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}
	sugg, err := s.querier.Suggest(ctx)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, suggestionsResponse{Suggestions: sugg})
}

// decodeJSON decodes the request body into v, writing a 400 (or 413 for an
// oversized body) on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(r.Context(), w, http.StatusRequestEntityTooLarge, errorResponse{
				Error: fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit),
				Kind:  string(apperr.KindValidation),
			})
			return false
		}
		writeError(r.Context(), w, apperr.Wrap(err, apperr.KindValidation, "invalid request body"))
		return false
	}
	return true
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindUnparseableExpression, apperr.KindDivisionByZero:
		return http.StatusBadRequest
	case apperr.KindNotFound, apperr.KindDefinitionNotFound:
		return http.StatusNotFound
	case apperr.KindRetrievalUnavailable, apperr.KindGenerationUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes the {error, kind, tool} body for err.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, body := errorBody(ctx, err)
	writeJSON(ctx, w, status, body)
}

// errorBody maps err to its status and reply. Internal errors are logged and
// their message is hidden.
func errorBody(ctx context.Context, err error) (int, errorResponse) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logging.FromContext(ctx).Error("request failed", slog.String("kind", string(kind)), slog.Any("error", err))
		if kind == apperr.KindInternal {
			msg = "internal error"
		}
	}
	return status, errorResponse{Error: msg, Kind: string(kind), Tool: apperr.ToolOf(err)}
}

// writeJSON encodes v with the given status.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(ctx).Error("response encode error", slog.Any("error", err))
	}
}
