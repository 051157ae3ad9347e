package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/raga-go/internal/logging"
	"github.com/54b3r/raga-go/internal/server"
	"github.com/54b3r/raga-go/internal/tracing"
)

// NewServeCmd constructs the `raga serve` command, which starts the HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the raga HTTP API server",
		Long: `Start the raga HTTP API server.

Endpoints:
  POST   /api/query            Route and answer one question
  GET    /api/documents        List registered documents
  POST   /api/documents        Ingest documents
  DELETE /api/documents/{id}   Remove a document
  GET    /api/suggestions      Suggest questions about the indexed content
  GET    /api/health           Liveness
  GET    /api/ready            Readiness (index, registry, model)
  GET    /metrics              Prometheus metrics

Set RAGA_API_KEY to require a bearer token on /api/query, /api/documents and
/api/suggestions. Tracing is enabled when LANGFUSE_PUBLIC_KEY and
LANGFUSE_SECRET_KEY are set.

Examples:
  raga serve
  raga serve --port 9090
  INDEX_BACKEND=memory EMBEDDING_PROVIDER=hash raga serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)

			flush, ok := tracing.Install(tracing.ConfigFromEnv())
			if ok {
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			metrics := server.NewMetrics(prometheus.DefaultRegisterer)
			rt, err := buildRuntime(ctx, log, buildOptions{withModel: true, metrics: metrics})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer rt.Close()
			log.Info("settings loaded", slog.String("settings", rt.settings.String()))

			if !cmd.Flags().Changed("host") {
				host = rt.settings.Host
			}
			if !cmd.Flags().Changed("port") {
				port = rt.settings.Port
			}

			srvCfg := &server.Config{
				Host:           host,
				Port:           port,
				Logger:         log,
				Pingers:        buildPingers(rt),
				APIKey:         rt.settings.APIKey,
				RateLimit:      rt.settings.RateLimit(),
				RequestTimeout: rt.settings.RequestTimeout,
				Metrics:        metrics,
				Tools:          rt.tools,
			}
			var srv *server.Server
			if rt.registry != nil {
				srv, err = server.New(rt.orch, rt.pipeline, rt.registry, srvCfg)
			} else {
				srv, err = server.New(rt.orch, rt.pipeline, nil, srvCfg)
			}
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default: $RAGA_HOST or 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (default: $RAGA_PORT or 8080)")

	return cmd
}
