// Package app wires configuration into the services shared by the API server and the CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"research-agent/internal/config"
	"research-agent/internal/ingest"
	"research-agent/internal/llm"
	"research-agent/internal/metrics"
	"research-agent/internal/policy"
	"research-agent/internal/rag"
	"research-agent/internal/service"
	"research-agent/internal/storage"
	"research-agent/internal/vectorstore"
)

// App holds the long-lived components.
type App struct {
	Config    *config.Config
	DB        *sql.DB
	Store     vectorstore.VectorStore
	Embedder  *llm.EmbeddingsClient
	LLM       *llm.Client
	Metrics   *metrics.Metrics
	Policy    *policy.Policy
	Pipeline  *ingest.Pipeline
	Retriever *rag.Retriever
	Sessions  *service.SessionStore
	Chat      service.ChatService

	closers []func() error
}

// NewLogger builds the slog logger selected by LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// New opens the database and vector store and builds every service.
// The caller must Close the returned App.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New()}

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)

	if err := storage.Migrate(db); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.DebugContext(ctx, "database initialized", "path", cfg.DBPath)

	switch cfg.VectorStore {
	case config.VectorStoreMemory:
		a.Store = vectorstore.NewMemoryStore()
		slog.WarnContext(ctx, "using in-memory vector store; vectors are lost on exit")
	default:
		qdrant, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
		}
		a.Store = qdrant
		a.closers = append(a.closers, qdrant.Close)
	}

	if a.Policy, err = policy.Load(cfg.PolicyFile); err != nil {
		_ = a.Close()
		return nil, err
	}

	// One budget for embeddings and chat: both hit the same provider.
	limit := llm.WithLimiter(llm.NewLimiter(cfg.RequestsPerSecond))
	a.Embedder = llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.VectorSize, limit)
	a.LLM = llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName, limit)

	a.Pipeline, err = ingest.NewPipeline(
		storage.NewDocumentRepo(db),
		storage.NewChunkRepo(db),
		a.Embedder,
		a.Store,
		ingest.Config{
			Root:           cfg.ReportsDir,
			Collection:     cfg.QdrantCollection,
			VectorSize:     cfg.VectorSize,
			ChunkSize:      cfg.ChunkSize,
			ChunkOverlap:   cfg.ChunkOverlap,
			EmbeddingModel: cfg.EmbeddingModelName,
		},
		a.Metrics,
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	retrieverCfg := rag.DefaultConfig(cfg.QdrantCollection)
	retrieverCfg.DefaultK = cfg.RetrievalTopK
	retrieverCfg.MaxDistance = cfg.RetrievalMaxDistance
	retrieverCfg.MaxAttempts = cfg.EmbeddingMaxAttempts
	retrieverCfg.BaseBackoff = cfg.EmbeddingBackoff
	retrieverCfg.Timeout = cfg.RetrievalTimeout
	a.Retriever = rag.NewRetriever(a.Embedder, a.Store, retrieverCfg, a.Metrics)

	chatCfg := service.DefaultConfig()
	chatCfg.Model = cfg.LLMModelName
	chatCfg.GenerationTimeout = cfg.GenerationTimeout
	chatCfg.MaxToolIterations = cfg.MaxToolIterations
	chatCfg.MaxHistoryTurns = cfg.MaxHistoryTurns
	chatCfg.DefaultK = cfg.RetrievalTopK
	a.Sessions = service.NewSessionStore()
	a.Chat = service.NewChatService(a.LLM, a.Retriever, a.Sessions, a.Policy, chatCfg, a.Metrics)

	return a, nil
}

// Prepare creates the collection and checks the embedding model returns
// vectors of the configured size.
func (a *App) Prepare(ctx context.Context) error {
	if err := a.Pipeline.EnsureCollection(ctx); err != nil {
		return err
	}
	vectors, err := a.Embedder.EmbedTexts(ctx, []string{"test"})
	if err != nil {
		return fmt.Errorf("failed to validate embedding client: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) != a.Config.VectorSize {
		got := 0
		if len(vectors) > 0 {
			got = len(vectors[0])
		}
		return fmt.Errorf("embedding vector size mismatch: expected %d, got %d", a.Config.VectorSize, got)
	}
	slog.InfoContext(ctx, "collection ready", "collection", a.Config.QdrantCollection, "vector_size", a.Config.VectorSize)
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
