package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/tool"

	"github.com/54b3r/raga-go/internal/agent"
	"github.com/54b3r/raga-go/internal/apperr"
	"github.com/54b3r/raga-go/internal/chunker"
	"github.com/54b3r/raga-go/internal/config"
	"github.com/54b3r/raga-go/internal/embedder"
	"github.com/54b3r/raga-go/internal/generator"
	"github.com/54b3r/raga-go/internal/ingestion"
	"github.com/54b3r/raga-go/internal/provider"
	"github.com/54b3r/raga-go/internal/rag"
	"github.com/54b3r/raga-go/internal/server"
	"github.com/54b3r/raga-go/internal/store"
	"github.com/54b3r/raga-go/internal/tools"
)

// runtime bundles the components a command needs. Fields the command did not
// ask for stay nil.
type runtime struct {
	settings config.Settings
	provider *provider.Config

	index    *rag.Store
	registry *store.SQLiteStore
	pipeline *ingestion.Pipeline
	orch     *agent.Orchestrator
	// tools are the calculator and dictionary as eino tools, served by
	// /api/tools.
	tools []tool.BaseTool

	closers []func() error
}

// buildOptions selects which parts of the runtime to construct.
type buildOptions struct {
	// withModel constructs the chat model, generator, tools and orchestrator.
	withModel bool
	// metrics receives outcomes and retry events. Optional.
	metrics *server.Metrics
}

// buildRuntime wires settings, index, registry and pipeline, and with
// opts.withModel also the model-backed orchestrator. Call Close when done.
func buildRuntime(ctx context.Context, log *slog.Logger, opts buildOptions) (_ *runtime, err error) {
	settings, err := config.SettingsFromEnv()
	if err != nil {
		return nil, err
	}
	policy := settings.Retry
	if opts.metrics != nil {
		policy.OnRetry = opts.metrics.OnRetry
	}

	rt := &runtime{settings: settings}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	embedCfg := embedder.ConfigFromEnv()
	embedCfg.WarnIfChatModel(log)
	emb, err := embedder.New(embedCfg)
	if err != nil {
		return nil, err
	}

	index, err := openIndex(settings.Index)
	if err != nil {
		return nil, err
	}
	rt.index, err = rag.NewStore(ctx, index, rag.StoreConfig{Dimension: embedCfg.Dimensions, Retry: policy})
	if err != nil {
		_ = index.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, rt.index.Close)
	log.Info("index ready",
		slog.String("backend", settings.Index.Backend),
		slog.String("name", settings.Index.Name),
		slog.Int("dimension", embedCfg.Dimensions))

	rt.registry = openRegistry(settings.DBPath, log)
	if rt.registry != nil {
		rt.closers = append(rt.closers, rt.registry.Close)
	}

	ch, err := chunker.New(settings.ChunkSize, settings.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	pipeCfg := ingestion.Config{
		Chunker:  ch,
		Embedder: emb,
		Store:    rt.index,
		Retry:    policy,
	}
	if rt.registry != nil {
		pipeCfg.Registry = rt.registry
	}
	if opts.metrics != nil {
		pipeCfg.Observer = opts.metrics
	}
	if rt.pipeline, err = ingestion.NewPipeline(pipeCfg); err != nil {
		return nil, err
	}

	if !opts.withModel {
		return rt, nil
	}

	rt.provider = provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, rt.provider)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("provider", string(rt.provider.Backend)))

	gen, err := generator.New(generator.Config{ChatModel: chatModel, Retry: policy})
	if err != nil {
		return nil, err
	}
	retriever, err := rag.NewRetriever(emb, rt.index, rag.RetrieverConfig{
		TopK:      settings.TopK,
		MinScore:  settings.MinScore,
		CacheSize: settings.EmbedCacheSize,
		Retry:     policy,
	})
	if err != nil {
		return nil, err
	}
	calc, err := tools.NewCalculator()
	if err != nil {
		return nil, err
	}
	dict, err := tools.NewDictionary(tools.DictionaryConfig{
		BaseURL:  settings.DictionaryURL,
		Retry:    policy,
		Fallback: gen,
	})
	if err != nil {
		return nil, err
	}
	rt.tools = tools.BaseTools(calc, dict)

	agentCfg := agent.Config{
		Retriever:  retriever,
		Generator:  gen,
		Calculator: calc,
		Dictionary: dict,
		Sampler:    rt.index,
		TopK:       settings.TopK,
		MinScore:   settings.MinScore,
		Timeout:    settings.RequestTimeout,
	}
	if rt.registry != nil {
		agentCfg.Log = rt.registry
	}
	if opts.metrics != nil {
		agentCfg.Observer = opts.metrics
	}
	if rt.orch, err = agent.New(agentCfg); err != nil {
		return nil, err
	}
	return rt, nil
}

// Close releases every opened backend in reverse order.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
	rt.closers = nil
}

// requireRegistry returns the registry or a configuration error when it is
// disabled.
func (rt *runtime) requireRegistry() (*store.SQLiteStore, error) {
	if rt.registry == nil {
		return nil, apperr.New(apperr.KindConfiguration, "document registry is disabled (RAGA_DB_PATH=disabled)")
	}
	return rt.registry, nil
}

// openIndex constructs the vector index backend named by cfg.Backend.
func openIndex(cfg config.IndexSettings) (rag.Index, error) {
	switch cfg.Backend {
	case config.IndexQdrant:
		return rag.NewQdrantIndex(cfg.Qdrant)
	case config.IndexPgvector:
		return rag.NewPgvectorIndex(rag.PgvectorConfig{DSN: cfg.PgvectorDSN, Table: cfg.Name})
	case config.IndexMemory:
		return rag.NewMemoryIndex(), nil
	}
	return nil, apperr.Newf(apperr.KindConfiguration, "unknown index backend %q", cfg.Backend)
}

// openRegistry opens the SQLite registry and query log. A failure to open is
// logged and disables both rather than aborting the command.
func openRegistry(path string, log *slog.Logger) *store.SQLiteStore {
	if path == "disabled" {
		log.Info("registry: disabled via RAGA_DB_PATH=disabled")
		return nil
	}
	if path == "" {
		var err error
		path, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("registry: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
	}
	s, err := store.Open(path)
	if err != nil {
		log.Warn("registry: failed to open store, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("registry: store opened", slog.String("path", path))
	return s
}

// buildPingers returns the readiness probes for serve.
func buildPingers(rt *runtime) []server.Pinger {
	pingers := []server.Pinger{server.NewPinger("index", rt.index.Ping)}
	if rt.registry != nil {
		pingers = append(pingers, server.NewPinger("registry", rt.registry.Ping))
	}
	if rt.provider != nil && rt.provider.Backend == provider.BackendOllama && rt.provider.Ollama.Host != "" {
		pingers = append(pingers, server.NewHTTPPinger("model", strings.TrimRight(rt.provider.Ollama.Host, "/")+"/api/tags"))
	}
	return pingers
}
