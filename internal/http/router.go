package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"research-agent/internal/handlers"
	"research-agent/internal/metrics"
	"research-agent/internal/service"
	"research-agent/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	ChatService service.ChatService
	Ingester    handlers.Ingester
	VectorStore vectorstore.VectorStore
	// Models is optional; nil skips the LLM health check.
	Models     handlers.ModelChecker
	Collection string
	ReportsDir string
	// Metrics is optional; nil disables /metrics.
	Metrics *metrics.Metrics
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)
	if deps.Metrics != nil {
		r.Use(Metrics(deps.Metrics))
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	queryHandler := handlers.NewQueryHandler(deps.ChatService)
	conversationHandler := handlers.NewConversationHandler(deps.ChatService)
	healthHandler := handlers.NewHealthHandler(deps.VectorStore, deps.Models, deps.Collection)

	r.Route("/api/v1", func(r chi.Router) {
		r.Method(http.MethodPost, "/query", queryHandler)
		r.Post("/conversation", conversationHandler.Post)
		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/", conversationHandler.History)
			r.Delete("/", conversationHandler.Delete)
			r.Get("/transcript", conversationHandler.Transcript)
		})
		r.Method(http.MethodGet, "/health", healthHandler)
		if deps.Ingester != nil {
			r.Method(http.MethodGet, "/stats", handlers.NewStatsHandler(deps.Ingester))
			r.Method(http.MethodPost, "/index", handlers.NewIndexHandler(deps.Ingester, deps.ReportsDir))
		}
	})

	return r
}
