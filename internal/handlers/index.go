package handlers

import (
	"context"
	"net/http"
	"sync/atomic"

	"research-agent/internal/contextutil"
	"research-agent/internal/ingest"
)

// Ingester loads reports into the index.
type Ingester interface {
	IngestDir(ctx context.Context, dir string, force bool) (ingest.Summary, error)
	ClearAll(ctx context.Context) error
	Stats(ctx context.Context) (*ingest.Stats, error)
}

// IndexHandler handles HTTP requests for triggering re-ingestion.
type IndexHandler struct {
	ingester   Ingester
	reportsDir string
	running    atomic.Bool
}

// NewIndexHandler creates a new IndexHandler.
func NewIndexHandler(ingester Ingester, reportsDir string) *IndexHandler {
	return &IndexHandler{ingester: ingester, reportsDir: reportsDir}
}

// IndexResponse represents the response from the index endpoint.
type IndexResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ServeHTTP starts ingestion of the reports directory in the background.
// ?force=true clears the index first. Only one run is allowed at a time.
func (h *IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if !h.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "Ingestion already running")
		return
	}

	force := r.URL.Query().Get("force") == "true"
	if force {
		logger.InfoContext(ctx, "force re-ingestion triggered via API")
	} else {
		logger.InfoContext(ctx, "re-ingestion triggered via API")
	}

	// The run outlives the request but keeps its logger.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer h.running.Store(false)

		if force {
			if err := h.ingester.ClearAll(runCtx); err != nil {
				logger.ErrorContext(runCtx, "failed to clear existing data", "error", err)
				return
			}
		}
		summary, err := h.ingester.IngestDir(runCtx, h.reportsDir, force)
		if err != nil {
			logger.ErrorContext(runCtx, "re-ingestion completed with errors", "error", err, "failed", summary.Failed)
			return
		}
		logger.InfoContext(runCtx, "re-ingestion completed successfully", "ingested", summary.Ingested, "skipped", summary.Skipped)
	}()

	message := "Ingestion started. Check server logs for progress."
	if force {
		message = "Force re-ingestion started (all existing data cleared). Check server logs for progress."
	}
	writeJSON(ctx, w, http.StatusAccepted, IndexResponse{
		Message: message,
		Status:  "accepted",
	})
}

// StatsHandler reports index statistics.
type StatsHandler struct {
	ingester Ingester
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(ingester Ingester) *StatsHandler {
	return &StatsHandler{ingester: ingester}
}

// ServeHTTP writes the current index statistics.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.ingester.Stats(ctx)
	if err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to compute stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}
	writeJSON(ctx, w, http.StatusOK, stats)
}
