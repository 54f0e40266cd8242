// Package ingest loads research reports, splits them into chunks, embeds the
// chunks and stores them in SQLite and the vector index.
package ingest

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"research-agent/internal/contextutil"
	"research-agent/internal/metrics"
	"research-agent/internal/rag"
	"research-agent/internal/storage"
	"research-agent/internal/vectorstore"
)

const outcomeSkipped = "skipped"

// Config tunes the pipeline.
type Config struct {
	// Root is the reports directory. Documents are named by their path relative to it.
	Root           string
	Collection     string
	VectorSize     int
	ChunkSize      int
	ChunkOverlap   int
	BatchSize      int
	EmbeddingModel string
}

// FileResult describes the ingestion of one file.
type FileResult struct {
	Name    string `json:"name"`
	Pages   int    `json:"pages"`
	Chunks  int    `json:"chunks"`
	Skipped bool   `json:"skipped"`
}

// Summary aggregates an IngestDir run.
type Summary struct {
	Files    int `json:"files"`
	Ingested int `json:"ingested"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
	Chunks   int `json:"chunks"`
}

// Pipeline orchestrates ingestion of report files into SQLite and the vector index.
// Writes are serialized so concurrent runs never interleave on one document.
type Pipeline struct {
	mu sync.Mutex

	docs     storage.DocumentStore
	chunks   storage.ChunkStore
	embedder rag.Embedder
	store    vectorstore.VectorStore
	splitter *Splitter
	cfg      Config
	metrics  *metrics.Metrics
}

// NewPipeline creates a new ingestion pipeline. m may be nil.
func NewPipeline(
	docs storage.DocumentStore,
	chunks storage.ChunkStore,
	embedder rag.Embedder,
	store vectorstore.VectorStore,
	cfg Config,
	m *metrics.Metrics,
) (*Pipeline, error) {
	splitter, err := NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Pipeline{
		docs:     docs,
		chunks:   chunks,
		embedder: embedder,
		store:    store,
		splitter: splitter,
		cfg:      cfg,
		metrics:  m,
	}, nil
}

// EnsureCollection creates the vector collection if it does not exist.
func (p *Pipeline) EnsureCollection(ctx context.Context) error {
	if err := p.store.EnsureCollection(ctx, p.cfg.Collection, p.cfg.VectorSize); err != nil {
		return fmt.Errorf("failed to ensure collection %s: %w", p.cfg.Collection, err)
	}
	return nil
}

// IngestFile ingests one report, named relative to the configured root.
// Unchanged files are skipped unless force is set.
// The document record is only marked current after both stores hold the new
// chunks, so an interrupted run is retried on the next ingestion.
func (p *Pipeline) IngestFile(ctx context.Context, path string, force bool) (FileResult, error) {
	return p.ingestFile(ctx, p.cfg.Root, path, force)
}

// DocumentName is the document key for a file under root: its slash-separated
// relative path, or the base name when the file lies outside root.
func DocumentName(root, file string) string {
	if root != "" {
		rel, err := filepath.Rel(root, file)
		if err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(file)
}

func (p *Pipeline) ingestFile(ctx context.Context, root, path string, force bool) (FileResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	logger := contextutil.LoggerFromContext(ctx).With("component", "ingest")
	name := DocumentName(root, path)
	result := FileResult{Name: name}

	data, err := os.ReadFile(path)
	if err != nil {
		p.metrics.ObserveDocument(metrics.OutcomeError)
		return result, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(data))

	existing, err := p.docs.GetByName(ctx, name)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		p.metrics.ObserveDocument(metrics.OutcomeError)
		return result, fmt.Errorf("failed to check existing document: %w", err)
	}
	if existing != nil && existing.Hash == hash && !force {
		logger.DebugContext(ctx, "skipping unchanged file", "name", name, "hash", hash)
		p.metrics.ObserveDocument(outcomeSkipped)
		result.Skipped = true
		result.Pages = existing.PageCount
		result.Chunks = existing.ChunkCount
		return result, nil
	}

	if err := p.ingest(ctx, name, path, data, hash, existing, &result); err != nil {
		p.metrics.ObserveDocument(metrics.OutcomeError)
		return result, err
	}
	p.metrics.ObserveDocument(metrics.OutcomeOK)
	logger.InfoContext(ctx, "ingested document", "name", name, "pages", result.Pages, "chunks", result.Chunks)
	return result, nil
}

func (p *Pipeline) ingest(ctx context.Context, name, path string, data []byte, hash string, existing *storage.DocumentRecord, result *FileResult) error {
	logger := contextutil.LoggerFromContext(ctx).With("component", "ingest")

	doc, err := Load(path, data)
	if err != nil {
		return err
	}
	doc.Name = name
	base := filepath.Base(path)
	sourceType := InferSourceType(base)
	published := InferPublishedDate(base)

	chunks := p.buildChunks(doc, sourceType, published)
	result.Pages = len(doc.Pages)
	result.Chunks = len(chunks)
	if len(chunks) == 0 {
		logger.WarnContext(ctx, "no text extracted", "name", doc.Name, "pages", len(doc.Pages))
	}

	vectors, err := p.embed(ctx, chunks)
	if err != nil {
		return err
	}

	record := &storage.DocumentRecord{
		Name:       doc.Name,
		Path:       path,
		SourceType: sourceType,
		PageCount:  len(doc.Pages),
		ChunkCount: len(chunks),
	}
	if !published.IsZero() {
		record.PublishedAt = &published
	}

	if existing != nil {
		if err := p.removeVectors(ctx, existing.ID); err != nil {
			return err
		}
	}

	// Hash stays empty until every store is written.
	if err := p.docs.Upsert(ctx, record); err != nil {
		return err
	}
	if err := p.chunks.DeleteByDocument(ctx, record.ID); err != nil {
		return err
	}

	records := make([]*storage.ChunkRecord, len(chunks))
	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		records[i] = &storage.ChunkRecord{
			ID:             c.ID,
			DocumentID:     record.ID,
			SourceDocument: c.SourceDocument,
			PageNumber:     c.PageNumber,
			SequenceIndex:  c.SequenceIndex,
			Text:           c.Text,
		}
		points[i] = c.Point(vectors[i])
	}
	if err := p.chunks.InsertBatch(ctx, records); err != nil {
		return err
	}
	for start := 0; start < len(points); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(points))
		if err := p.store.Upsert(ctx, p.cfg.Collection, points[start:end]); err != nil {
			return fmt.Errorf("failed to upsert vectors: %w", err)
		}
	}

	record.Hash = hash
	if err := p.docs.Upsert(ctx, record); err != nil {
		return err
	}
	return nil
}

// buildChunks splits every page and assigns IDs of the form <name>_page<N>_chunk<M>,
// where name is the document name including its directory and extension.
func (p *Pipeline) buildChunks(doc *Document, sourceType string, published time.Time) []rag.Chunk {
	var chunks []rag.Chunk
	seq := 0
	for _, page := range doc.Pages {
		for i, piece := range p.splitter.Split(page.Text) {
			chunks = append(chunks, rag.Chunk{
				ID:             fmt.Sprintf("%s_page%d_chunk%d", doc.Name, page.Number, i),
				Text:           piece,
				SourceDocument: doc.Name,
				PageNumber:     page.Number,
				SequenceIndex:  seq,
				SourceType:     sourceType,
				PublishedAt:    published,
			})
			seq++
		}
	}
	return chunks
}

func (p *Pipeline) embed(ctx context.Context, chunks []rag.Chunk) ([][]float32, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Text)
		}

		batch, err := p.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(batch))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (p *Pipeline) removeVectors(ctx context.Context, documentID string) error {
	ids, err := p.chunks.ListIDsByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to list old chunk IDs: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := p.store.Delete(ctx, p.cfg.Collection, ids); err != nil {
		return fmt.Errorf("failed to delete old vectors: %w", err)
	}
	return nil
}

// IngestDir ingests every supported file under dir.
// Errors for individual files are logged but don't stop the run.
func (p *Pipeline) IngestDir(ctx context.Context, dir string, force bool) (Summary, error) {
	logger := contextutil.LoggerFromContext(ctx).With("component", "ingest")

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(d.Name(), ".") && Supported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	logger.InfoContext(ctx, "starting ingestion", "dir", dir, "total_files", len(files))

	summary := Summary{Files: len(files)}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res, err := p.ingestFile(ctx, dir, path, force)
		if err != nil {
			summary.Failed++
			logger.ErrorContext(ctx, "failed to ingest file", "path", path, "error", err)
			continue
		}
		if res.Skipped {
			summary.Skipped++
			continue
		}
		summary.Ingested++
		summary.Chunks += res.Chunks
	}

	logger.InfoContext(ctx, "ingestion completed",
		"total_files", summary.Files,
		"ingested", summary.Ingested,
		"skipped", summary.Skipped,
		"errors", summary.Failed,
	)

	if summary.Failed > 0 {
		return summary, fmt.Errorf("ingestion completed with %d errors", summary.Failed)
	}
	return summary, nil
}

// Remove deletes a document by name from both stores.
func (p *Pipeline) Remove(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	doc, err := p.docs.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if err := p.removeVectors(ctx, doc.ID); err != nil {
		return err
	}
	return p.docs.Delete(ctx, doc.ID)
}

// ClearAll removes every document, chunk and vector.
func (p *Pipeline) ClearAll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	docs, err := p.docs.List(ctx)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := p.removeVectors(ctx, doc.ID); err != nil {
			return err
		}
		if err := p.docs.Delete(ctx, doc.ID); err != nil {
			return err
		}
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "cleared index", "documents", len(docs))
	return nil
}
