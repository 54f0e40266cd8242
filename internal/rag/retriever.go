package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks research-agent/internal/rag Embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"research-agent/internal/contextutil"
	"research-agent/internal/llm"
	"research-agent/internal/metrics"
	"research-agent/internal/vectorstore"
)

// Embedder turns texts into vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Config tunes retrieval.
type Config struct {
	Collection string
	// DefaultK is used when the caller passes k < 1.
	DefaultK int
	// MaxK caps k.
	MaxK int
	// MaxDistance drops results less similar than this (distance = 1 - cosine similarity).
	MaxDistance float64
	// MaxAttempts bounds embedding and index calls, including the first try.
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// Timeout bounds one Retrieve call including retries. Zero means none.
	Timeout time.Duration
}

// DefaultConfig returns the retrieval defaults for collection.
func DefaultConfig(collection string) Config {
	return Config{
		Collection:  collection,
		DefaultK:    5,
		MaxK:        20,
		MaxDistance: 0.65,
		MaxAttempts: 3,
		BaseBackoff: 200 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
		Timeout:     15 * time.Second,
	}
}

// Retriever embeds queries and finds the nearest chunks in the vector index.
type Retriever struct {
	embedder Embedder
	store    vectorstore.VectorStore
	cfg      Config
	metrics  *metrics.Metrics
}

// NewRetriever creates a Retriever. m may be nil.
func NewRetriever(embedder Embedder, store vectorstore.VectorStore, cfg Config, m *metrics.Metrics) *Retriever {
	if cfg.DefaultK < 1 {
		cfg.DefaultK = 5
	}
	if cfg.MaxK < cfg.DefaultK {
		cfg.MaxK = cfg.DefaultK
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = 2
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		metrics:  m,
	}
}

// Retrieve returns at most k chunks ordered by ascending distance.
// An empty, non-nil slice means nothing met the similarity threshold.
// Errors are ErrEmbeddingUnavailable, ErrIndexUnavailable, ErrInvalidQuery or ErrInvalidFilter.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, filters Filters) ([]Result, error) {
	start := time.Now()
	logger := contextutil.LoggerFromContext(ctx).With("component", "retriever")

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalidQuery
	}
	if k < 1 {
		k = r.cfg.DefaultK
	}
	if k > r.cfg.MaxK {
		k = r.cfg.MaxK
	}

	vf, err := filters.vectorFilter()
	if err != nil {
		return nil, err
	}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	var vec []float32
	err = r.retry(ctx, "embed", func(ctx context.Context) error {
		vecs, err := r.embedder.EmbedTexts(ctx, []string{query})
		if err == nil && len(vecs) != 1 {
			err = fmt.Errorf("expected 1 embedding, got %d", len(vecs))
		}
		if err != nil {
			r.metrics.ObserveEmbeddingAttempt(metrics.OutcomeError)
			return err
		}
		r.metrics.ObserveEmbeddingAttempt(metrics.OutcomeOK)
		vec = vecs[0]
		return nil
	})
	if err != nil {
		r.metrics.ObserveRetrieval(metrics.OutcomeError, time.Since(start))
		logger.ErrorContext(ctx, "query embedding failed", "query", query, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}

	var hits []vectorstore.SearchResult
	err = r.retry(ctx, "search", func(ctx context.Context) error {
		var err error
		hits, err = r.store.Search(ctx, r.cfg.Collection, vec, k, vf)
		return err
	})
	if err != nil {
		r.metrics.ObserveRetrieval(metrics.OutcomeError, time.Since(start))
		logger.ErrorContext(ctx, "vector search failed", "query", query, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		distance := math.Max(0, 1-float64(hit.Score))
		if distance > r.cfg.MaxDistance {
			continue
		}
		results = append(results, resultFromHit(hit, distance))
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}

	outcome := metrics.OutcomeHit
	if len(results) == 0 {
		outcome = metrics.OutcomeEmpty
	}
	r.metrics.ObserveRetrieval(outcome, time.Since(start))
	logger.InfoContext(ctx, "retrieval completed",
		"k", k,
		"hits", len(hits),
		"results", len(results),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return results, nil
}

// retry runs fn up to MaxAttempts times with capped exponential backoff.
func (r *Retriever) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	logger := contextutil.LoggerFromContext(ctx)

	var err error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(r.cfg.BaseBackoff, r.cfg.MaxBackoff, attempt-1, err)
			logger.WarnContext(ctx, "retrying after failure", "op", op, "attempt", attempt+1, "delay", delay, "error", err)
			if werr := sleep(ctx, delay); werr != nil {
				return errors.Join(err, werr)
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !llm.IsRetryable(err) {
			return err
		}
	}
	return err
}
