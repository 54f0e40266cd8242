package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDocumentRepo_UpsertAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepo(db)
	ctx := context.Background()

	published := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	doc := &DocumentRecord{
		Name:        "ubs_house_view_march_2025.pdf",
		Path:        "/reports/ubs_house_view_march_2025.pdf",
		SourceType:  "ubs_house_view",
		Hash:        "hash-1",
		PageCount:   30,
		ChunkCount:  120,
		PublishedAt: &published,
	}
	if err := repo.Upsert(ctx, doc); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if doc.ID == "" {
		t.Fatal("Upsert() should assign an ID")
	}

	got, err := repo.GetByName(ctx, doc.Name)
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if got.ID != doc.ID || got.Hash != "hash-1" || got.PageCount != 30 || got.ChunkCount != 120 {
		t.Errorf("GetByName() = %+v, want fields of %+v", got, doc)
	}
	if got.PublishedAt == nil || !got.PublishedAt.Equal(published) {
		t.Errorf("GetByName() PublishedAt = %v, want %v", got.PublishedAt, published)
	}
	if got.IngestedAt.IsZero() {
		t.Error("GetByName() IngestedAt should be set")
	}

	// Re-upsert keeps the ID and updates the hash.
	update := &DocumentRecord{Name: doc.Name, Path: doc.Path, SourceType: doc.SourceType, Hash: "hash-2"}
	if err := repo.Upsert(ctx, update); err != nil {
		t.Fatalf("Upsert() update error = %v", err)
	}
	if update.ID != doc.ID {
		t.Errorf("Upsert() changed ID: %v -> %v", doc.ID, update.ID)
	}
	got, err = repo.GetByName(ctx, doc.Name)
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if got.Hash != "hash-2" {
		t.Errorf("GetByName() Hash = %v, want hash-2", got.Hash)
	}
	if got.PublishedAt != nil {
		t.Errorf("GetByName() PublishedAt = %v, want nil after update", got.PublishedAt)
	}
}

func TestDocumentRepo_GetByName_NotFound(t *testing.T) {
	repo := NewDocumentRepo(newTestDB(t))

	_, err := repo.GetByName(context.Background(), "missing.pdf")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByName() error = %v, want ErrNotFound", err)
	}
}

func TestDocumentRepo_ListCountDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepo(db)
	chunks := NewChunkRepo(db)
	ctx := context.Background()

	for _, name := range []string{"b.pdf", "a.pdf"} {
		if err := repo.Upsert(ctx, &DocumentRecord{Name: name, Path: "/" + name, SourceType: "unknown", Hash: name}); err != nil {
			t.Fatalf("Upsert(%s) error = %v", name, err)
		}
	}

	docs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(docs) != 2 || docs[0].Name != "a.pdf" || docs[1].Name != "b.pdf" {
		t.Fatalf("List() = %v, want a.pdf, b.pdf", docs)
	}

	if err := chunks.InsertBatch(ctx, []*ChunkRecord{
		{ID: "a_page1_chunk0", DocumentID: docs[0].ID, SourceDocument: "a.pdf", PageNumber: 1, SequenceIndex: 0, Text: "text"},
	}); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	if err := repo.Delete(ctx, docs[0].ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	// Chunks cascade with their document.
	if n, _ := chunks.Count(ctx); n != 0 {
		t.Errorf("chunks Count() = %d, want 0 after cascade", n)
	}
}
