package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/knowledge-fusion-engine/internal/config"
	"github.com/kirillkom/knowledge-fusion-engine/internal/core/ports"
	"github.com/kirillkom/knowledge-fusion-engine/internal/core/usecase"
	rediscache "github.com/kirillkom/knowledge-fusion-engine/internal/infrastructure/cache/redis"
	neo4jgraph "github.com/kirillkom/knowledge-fusion-engine/internal/infrastructure/graph/neo4j"
	"github.com/kirillkom/knowledge-fusion-engine/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/knowledge-fusion-engine/internal/infrastructure/queue/nats"
	"github.com/kirillkom/knowledge-fusion-engine/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/knowledge-fusion-engine/internal/infrastructure/resilience"
	"github.com/kirillkom/knowledge-fusion-engine/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config   config.Config
	Registry *config.DomainRegistry

	Queue   *nats.Queue
	History *postgres.HistoryRepository
	QueryUC ports.QueryService

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	registry, err := config.LoadDomainRegistry(cfg.DomainsConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load domain registry: %w", err)
	}
	vectorCollections := make(map[string]string, len(registry.Domains))
	graphLabels := make(map[string]string, len(registry.Domains))
	documentCategories := make(map[string]string, len(registry.Domains))
	for i := range registry.Domains {
		spec := &registry.Domains[i]
		vectorCollections[spec.ID] = spec.VectorCollection
		graphLabels[spec.ID] = spec.GraphLabel
		documentCategories[spec.ID] = spec.DocumentCategory
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	history := postgres.NewHistoryRepository(db)
	if err := history.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure history schema: %w", err)
	}
	documents := postgres.NewDocumentSearch(db, documentCategories)
	if err := documents.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure document schema: %w", err)
	}

	graph, err := neo4jgraph.New(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, graphLabels)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init neo4j: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = graph.Close(ctx)
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	cache := rediscache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	vector := qdrant.New(cfg.QdrantURL, cfg.QdrantCollectionPrefix, vectorCollections)

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, cfg.OllamaClassifyModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)
	var typeClassifier ports.TypeClassifier
	if cfg.ClassifierMLMode {
		typeClassifier = ollama.NewTypeClassifier(ollamaClient)
	}

	builder := usecase.NewContextBuilder(history, cache, logger, cfg.HistoryWindow, cfg.PreferenceLimit, cfg.MaxQueryLength, cfg.ContextCacheTTL)
	classifier := usecase.NewQueryClassifier(typeClassifier, registry, logger)
	engine := usecase.NewHybridRetrievalEngine(embedder, vector, graph, documents, logger, cfg.BackendTimeout, cfg.OverFetchMultiplier)
	router := usecase.NewDomainRouter(engine, logger, cfg.DomainTimeout, cfg.RetrievalTopK)
	fusion := usecase.NewKnowledgeFusionEngine(usecase.FusionWeights{
		Vector:    cfg.VectorWeight,
		Graph:     cfg.GraphWeight,
		Document:  cfg.DocumentWeight,
		Backend:   cfg.BackendWeight,
		Relevance: cfg.RelevanceWeight,
	}, cfg.PrimaryK, cfg.SupportingK)

	queryUC := usecase.NewQueryUseCase(
		builder,
		classifier,
		router,
		fusion,
		generator,
		registry,
		cache,
		queue,
		logger,
		cfg.ResultCacheTTL,
	)

	return &App{
		Config:   cfg,
		Registry: registry,
		Queue:    queue,
		History:  history,
		QueryUC:  queryUC,

		closeFn: func() {
			queue.Close()
			_ = cache.Close()
			_ = graph.Close(context.Background())
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// NewWorker wires only what the history worker consumes: the interaction
// queue and the Postgres history store. The retrieval backends stay out, so
// a Neo4j or Qdrant outage cannot keep history appends from draining.
func NewWorker(ctx context.Context, cfg config.Config, _ *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	history := postgres.NewHistoryRepository(db)
	if err := history.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure history schema: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	return &App{
		Config:  cfg,
		Queue:   queue,
		History: history,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}
