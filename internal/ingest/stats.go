package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	// SplitterVersion identifies the chunking logic.
	// Update this when chunking changes so IndexVersion changes with it.
	SplitterVersion = "recursive-v1"
	// CharsPerToken approximates token counts from character counts.
	CharsPerToken = 4.0
)

// Stats describes the current state of the index.
type Stats struct {
	Collection        string          `json:"collection"`
	Documents         int             `json:"documents"`
	DocsWithoutChunks int             `json:"docs_without_chunks"`
	Chunks            int             `json:"chunks"`
	Vectors           int             `json:"vectors"`
	SourceTypes       map[string]int  `json:"source_types"`
	ChunkTokenStats   ChunkTokenStats `json:"chunk_token_stats"`
	SplitterVersion   string          `json:"splitter_version"`
	// IndexVersion hashes the splitter version, its parameters and the embedding model.
	IndexVersion string `json:"index_version"`
}

// ChunkTokenStats contains statistics about estimated token counts per chunk.
type ChunkTokenStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// Stats computes index statistics from SQLite and the vector index.
func (p *Pipeline) Stats(ctx context.Context) (*Stats, error) {
	docs, err := p.docs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	stats := &Stats{
		Collection:      p.cfg.Collection,
		Documents:       len(docs),
		SourceTypes:     make(map[string]int),
		SplitterVersion: SplitterVersion,
		IndexVersion:    p.IndexVersion(),
	}
	for _, d := range docs {
		stats.SourceTypes[d.SourceType]++
		if d.ChunkCount == 0 {
			stats.DocsWithoutChunks++
		}
	}

	lengths, err := p.chunks.TextLengths(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk lengths: %w", err)
	}
	stats.Chunks = len(lengths)

	tokenCounts := make([]int, 0, len(lengths))
	for _, n := range lengths {
		tokens := int(math.Round(float64(n) / CharsPerToken))
		if tokens < 1 {
			tokens = 1
		}
		tokenCounts = append(tokenCounts, tokens)
	}
	stats.ChunkTokenStats = computeTokenStats(tokenCounts)

	exists, err := p.store.CollectionExists(ctx, p.cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		if stats.Vectors, err = p.store.Count(ctx, p.cfg.Collection); err != nil {
			return nil, fmt.Errorf("failed to count vectors: %w", err)
		}
	}

	return stats, nil
}

// IndexVersion returns a short hash of everything that shapes stored vectors.
func (p *Pipeline) IndexVersion() string {
	input := strings.Join([]string{
		SplitterVersion,
		p.cfg.EmbeddingModel,
		fmt.Sprintf("size=%d", p.splitter.Size),
		fmt.Sprintf("overlap=%d", p.splitter.Overlap),
	}, "|")
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

// computeTokenStats computes min, max, mean, and p95 from token counts.
func computeTokenStats(tokenCounts []int) ChunkTokenStats {
	if len(tokenCounts) == 0 {
		return ChunkTokenStats{}
	}

	sorted := make([]int, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Ints(sorted)

	sum := 0
	for _, count := range sorted {
		sum += count
	}
	mean := float64(sum) / float64(len(sorted))

	p95Index := int(math.Ceil(float64(len(sorted))*0.95)) - 1
	if p95Index < 0 {
		p95Index = 0
	}

	return ChunkTokenStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100,
		P95:  sorted[p95Index],
	}
}
