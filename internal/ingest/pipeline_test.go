package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"research-agent/internal/rag"
	"research-agent/internal/storage"
	"research-agent/internal/vectorstore"
	vectorstore_mocks "research-agent/internal/vectorstore/mocks"
)

const testCollection = "investment_research"

var vocabulary = []string{"equities", "risks", "bonds", "crypto", "target"}

type keywordEmbedder struct {
	calls int
}

func (e *keywordEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(vocabulary))
		lower := strings.ToLower(text)
		for j, word := range vocabulary {
			vec[j] = float32(strings.Count(lower, word)) + 0.01
		}
		out[i] = vec
	}
	return out, nil
}

type fixture struct {
	pipeline *Pipeline
	docs     *storage.DocumentRepo
	chunks   *storage.ChunkRepo
	store    vectorstore.VectorStore
	embedder *keywordEmbedder
	dir      string
}

func newFixture(t *testing.T, store vectorstore.VectorStore) *fixture {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Migrate(db))

	if store == nil {
		store = vectorstore.NewMemoryStore()
	}
	f := &fixture{
		docs:     storage.NewDocumentRepo(db),
		chunks:   storage.NewChunkRepo(db),
		store:    store,
		embedder: &keywordEmbedder{},
		dir:      t.TempDir(),
	}
	f.pipeline, err = NewPipeline(f.docs, f.chunks, f.embedder, store, Config{
		Root:           f.dir,
		Collection:     testCollection,
		VectorSize:     len(vocabulary),
		ChunkSize:      1000,
		ChunkOverlap:   200,
		BatchSize:      1,
		EmbeddingModel: "keyword",
	}, nil)
	require.NoError(t, err)
	return f
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const houseView = "# Equities\n\nUS equities outlook: equities remain attractive.\n\n## Risks\n\nKey risks to the equities view.\n"

func TestNewPipeline_InvalidSplitter(t *testing.T) {
	_, err := NewPipeline(nil, nil, nil, nil, Config{ChunkSize: 10, ChunkOverlap: 10}, nil)
	assert.Error(t, err)
}

func TestPipeline_IngestFile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.pipeline.EnsureCollection(ctx))

	path := f.write(t, "ubs_house_view_march_2025.md", houseView)

	res, err := f.pipeline.IngestFile(ctx, path, false)
	require.NoError(t, err)
	assert.Equal(t, FileResult{Name: "ubs_house_view_march_2025.md", Pages: 2, Chunks: 2}, res)
	assert.Equal(t, 2, f.embedder.calls, "batch size 1 embeds one chunk per call")

	doc, err := f.docs.GetByName(ctx, res.Name)
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Hash)
	assert.Equal(t, SourceUBSHouseView, doc.SourceType)
	require.NotNil(t, doc.PublishedAt)
	assert.True(t, doc.PublishedAt.Equal(time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)))

	chunk, err := f.chunks.GetByID(ctx, "ubs_house_view_march_2025.md_page2_chunk0")
	require.NoError(t, err)
	assert.Equal(t, 2, chunk.PageNumber)
	assert.Equal(t, 1, chunk.SequenceIndex)
	assert.Contains(t, chunk.Text, "Key risks")

	n, err := f.store.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// The stored chunk is retrievable with its page and payload intact.
	retriever := rag.NewRetriever(f.embedder, f.store, rag.DefaultConfig(testCollection), nil)
	results, err := retriever.Retrieve(ctx, "Key risks to the equities view.", 1, rag.Filters{SourceType: SourceUBSHouseView})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ubs_house_view_march_2025.md_page2_chunk0", results[0].ChunkID)
	assert.Equal(t, 2, results[0].PageNumber)
}

func TestPipeline_IngestFile_SkipAndReplace(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.pipeline.EnsureCollection(ctx))
	path := f.write(t, "report.md", houseView)

	_, err := f.pipeline.IngestFile(ctx, path, false)
	require.NoError(t, err)

	res, err := f.pipeline.IngestFile(ctx, path, false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 2, res.Chunks)

	res, err = f.pipeline.IngestFile(ctx, path, true)
	require.NoError(t, err)
	assert.False(t, res.Skipped, "force re-ingests unchanged files")

	// Shrinking the report removes the chunks that no longer exist.
	f.write(t, "report.md", "# Equities\n\nUS equities outlook.\n")
	res, err = f.pipeline.IngestFile(ctx, path, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)

	_, err = f.chunks.GetByID(ctx, "report.md_page2_chunk0")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	n, err := f.store.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPipeline_IngestFile_VectorFailureNotMarkedCurrent(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := vectorstore_mocks.NewMockVectorStore(ctrl)
	f := newFixture(t, store)
	ctx := context.Background()
	path := f.write(t, "report.txt", "Equities remain attractive.")

	store.EXPECT().Upsert(gomock.Any(), testCollection, gomock.Any()).Return(errors.New("connection refused"))

	_, err := f.pipeline.IngestFile(ctx, path, false)
	require.Error(t, err)

	doc, err := f.docs.GetByName(ctx, "report.txt")
	require.NoError(t, err)
	assert.Empty(t, doc.Hash, "document must be retried on the next run")
}

func TestPipeline_IngestDir(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.pipeline.EnsureCollection(ctx))

	f.write(t, "a.md", houseView)
	f.write(t, "b.txt", "Bonds risks rise.\fPage two about bonds.")
	f.write(t, "sub/c.txt", "Crypto is volatile.")
	f.write(t, "broken.pdf", "not a pdf")
	f.write(t, ".hidden.md", "hidden")
	f.write(t, "data.csv", "a,b")

	summary, err := f.pipeline.IngestDir(ctx, f.dir, false)
	require.Error(t, err)
	assert.Equal(t, Summary{Files: 4, Ingested: 3, Failed: 1, Chunks: 5}, summary)

	summary, err = f.pipeline.IngestDir(ctx, f.dir, false)
	require.Error(t, err)
	assert.Equal(t, 3, summary.Skipped)

	stats, err := f.pipeline.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Documents, "failed pdf is never recorded")
	assert.Equal(t, 5, stats.Chunks)
	assert.Equal(t, 5, stats.Vectors)
	assert.Equal(t, 3, stats.SourceTypes[SourceUnknown])
	assert.Equal(t, testCollection, stats.Collection)
	assert.Len(t, stats.IndexVersion, 16)
	assert.Positive(t, stats.ChunkTokenStats.Max)

	_, err = f.docs.GetByName(ctx, "sub/c.txt")
	require.NoError(t, err, "nested reports are named by their relative path")

	require.NoError(t, f.pipeline.Remove(ctx, "a.md"))
	_, err = f.docs.GetByName(ctx, "a.md")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, f.pipeline.ClearAll(ctx))
	stats, err = f.pipeline.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)
	assert.Zero(t, stats.Chunks)
	assert.Zero(t, stats.Vectors)
}

func TestPipeline_IngestDir_NameCollisions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.pipeline.EnsureCollection(ctx))

	f.write(t, "report.md", "Equities remain attractive.")
	f.write(t, "report.txt", "Bonds risks rise.")
	f.write(t, "2024/outlook.txt", "Crypto is volatile.")
	f.write(t, "2025/outlook.txt", "Equities target raised.")

	summary, err := f.pipeline.IngestDir(ctx, f.dir, false)
	require.NoError(t, err)
	assert.Equal(t, Summary{Files: 4, Ingested: 4, Chunks: 4}, summary)

	for _, id := range []string{
		"report.md_page1_chunk0",
		"report.txt_page1_chunk0",
		"2024/outlook.txt_page1_chunk0",
		"2025/outlook.txt_page1_chunk0",
	} {
		_, err := f.chunks.GetByID(ctx, id)
		assert.NoError(t, err, id)
	}

	stats, err := f.pipeline.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Documents)
	assert.Equal(t, 4, stats.Vectors)

	summary, err = f.pipeline.IngestDir(ctx, f.dir, false)
	require.NoError(t, err)
	assert.Equal(t, Summary{Files: 4, Skipped: 4}, summary, "unchanged reports are skipped")
}

func TestDocumentName(t *testing.T) {
	root := filepath.Join("data", "reports")
	tests := []struct {
		name string
		root string
		file string
		want string
	}{
		{name: "top level", root: root, file: filepath.Join(root, "a.pdf"), want: "a.pdf"},
		{name: "nested", root: root, file: filepath.Join(root, "2024", "a.pdf"), want: "2024/a.pdf"},
		{name: "outside root", root: root, file: filepath.Join("other", "a.pdf"), want: "a.pdf"},
		{name: "dotted sibling name", root: root, file: filepath.Join(root, "..a.pdf"), want: "..a.pdf"},
		{name: "no root", root: "", file: filepath.Join(root, "2024", "a.pdf"), want: "a.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DocumentName(tt.root, tt.file))
		})
	}
}

// trackingEmbedder records how many embedding calls overlap.
type trackingEmbedder struct {
	active atomic.Int32
	peak   atomic.Int32
}

func (e *trackingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return (&keywordEmbedder{}).EmbedTexts(ctx, texts)
}

func TestPipeline_SerializesWrites(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.pipeline.EnsureCollection(ctx))

	emb := &trackingEmbedder{}
	p, err := NewPipeline(f.docs, f.chunks, emb, f.store, f.pipeline.cfg, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		path := f.write(t, fmt.Sprintf("r%d.txt", i), "Equities rally.")
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := p.IngestFile(ctx, path, true)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, p.ClearAll(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), emb.peak.Load(), "ingestions must not overlap")
	chunks, err := f.chunks.Count(ctx)
	require.NoError(t, err)
	vectors, err := f.store.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, chunks, vectors, "SQLite and the vector index must agree")
}

func TestComputeTokenStats(t *testing.T) {
	assert.Equal(t, ChunkTokenStats{}, computeTokenStats(nil))

	counts := make([]int, 0, 20)
	for i := 20; i >= 1; i-- {
		counts = append(counts, i)
	}
	got := computeTokenStats(counts)
	assert.Equal(t, ChunkTokenStats{Min: 1, Max: 20, Mean: 10.5, P95: 19}, got)
	assert.Equal(t, 20, counts[0], "input must not be reordered")
}

func TestPipeline_IndexVersion(t *testing.T) {
	a := newFixture(t, nil).pipeline
	b := newFixture(t, nil).pipeline
	assert.Equal(t, a.IndexVersion(), b.IndexVersion())

	b.cfg.EmbeddingModel = "other"
	assert.NotEqual(t, a.IndexVersion(), b.IndexVersion())
}
