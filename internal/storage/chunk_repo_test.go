package storage

import (
	"context"
	"errors"
	"testing"
)

func seedDocument(t *testing.T, repo *DocumentRepo, name string) *DocumentRecord {
	t.Helper()
	doc := &DocumentRecord{Name: name, Path: "/reports/" + name, SourceType: "unknown", Hash: "h"}
	if err := repo.Upsert(context.Background(), doc); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	return doc
}

func TestChunkRepo_InsertBatchAndGet(t *testing.T) {
	db := newTestDB(t)
	doc := seedDocument(t, NewDocumentRepo(db), "report_march.pdf")
	repo := NewChunkRepo(db)
	ctx := context.Background()

	chunks := []*ChunkRecord{
		{ID: "report_march_page22_chunk0", DocumentID: doc.ID, SourceDocument: doc.Name, PageNumber: 22, SequenceIndex: 1, Text: "S&P 500 target 6,400"},
		{ID: "report_march_page1_chunk0", DocumentID: doc.ID, SourceDocument: doc.Name, PageNumber: 1, SequenceIndex: 0, Text: "Intro"},
	}
	if err := repo.InsertBatch(ctx, chunks); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "report_march_page22_chunk0")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.PageNumber != 22 || got.SourceDocument != "report_march.pdf" || got.Text != "S&P 500 target 6,400" {
		t.Errorf("GetByID() = %+v", got)
	}

	ids, err := repo.ListIDsByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ListIDsByDocument() error = %v", err)
	}
	want := []string{"report_march_page1_chunk0", "report_march_page22_chunk0"}
	if len(ids) != len(want) || ids[0] != want[0] || ids[1] != want[1] {
		t.Errorf("ListIDsByDocument() = %v, want %v (sequence order)", ids, want)
	}
}

func TestChunkRepo_InsertBatch_Atomic(t *testing.T) {
	db := newTestDB(t)
	doc := seedDocument(t, NewDocumentRepo(db), "a.pdf")
	repo := NewChunkRepo(db)
	ctx := context.Background()

	// Duplicate sequence index violates the unique constraint on the second row.
	err := repo.InsertBatch(ctx, []*ChunkRecord{
		{ID: "a_page1_chunk0", DocumentID: doc.ID, SourceDocument: "a.pdf", PageNumber: 1, SequenceIndex: 0, Text: "x"},
		{ID: "a_page1_chunk1", DocumentID: doc.ID, SourceDocument: "a.pdf", PageNumber: 1, SequenceIndex: 0, Text: "y"},
	})
	if err == nil {
		t.Fatal("InsertBatch() expected error for duplicate sequence index")
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Count() = %d, want 0 after rolled back batch", n)
	}
}

func TestChunkRepo_InsertBatch_UnknownDocument(t *testing.T) {
	repo := NewChunkRepo(newTestDB(t))

	err := repo.InsertBatch(context.Background(), []*ChunkRecord{
		{ID: "x", DocumentID: "missing", SourceDocument: "x.pdf", PageNumber: 1, Text: "x"},
	})
	if err == nil {
		t.Error("InsertBatch() expected foreign key error")
	}
}

func TestChunkRepo_DeleteByDocument(t *testing.T) {
	db := newTestDB(t)
	docs := NewDocumentRepo(db)
	a := seedDocument(t, docs, "a.pdf")
	b := seedDocument(t, docs, "b.pdf")
	repo := NewChunkRepo(db)
	ctx := context.Background()

	if err := repo.InsertBatch(ctx, []*ChunkRecord{
		{ID: "a0", DocumentID: a.ID, SourceDocument: "a.pdf", PageNumber: 1, SequenceIndex: 0, Text: "a"},
		{ID: "b0", DocumentID: b.ID, SourceDocument: "b.pdf", PageNumber: 1, SequenceIndex: 0, Text: "b"},
	}); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	if err := repo.DeleteByDocument(ctx, a.ID); err != nil {
		t.Fatalf("DeleteByDocument() error = %v", err)
	}

	if _, err := repo.GetByID(ctx, "a0"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(a0) error = %v, want ErrNotFound", err)
	}
	if _, err := repo.GetByID(ctx, "b0"); err != nil {
		t.Errorf("GetByID(b0) error = %v, want nil", err)
	}

	ids, err := repo.ListIDsByDocument(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListIDsByDocument() error = %v", err)
	}
	if ids == nil || len(ids) != 0 {
		t.Errorf("ListIDsByDocument() = %v, want empty non-nil slice", ids)
	}
}

func TestChunkRepo_TextLengths(t *testing.T) {
	db := newTestDB(t)
	doc := seedDocument(t, NewDocumentRepo(db), "a.pdf")
	repo := NewChunkRepo(db)
	ctx := context.Background()

	lengths, err := repo.TextLengths(ctx)
	if err != nil {
		t.Fatalf("TextLengths() error = %v", err)
	}
	if lengths == nil || len(lengths) != 0 {
		t.Errorf("TextLengths() = %v, want empty non-nil slice", lengths)
	}

	if err := repo.InsertBatch(ctx, []*ChunkRecord{
		{ID: "a0", DocumentID: doc.ID, SourceDocument: "a.pdf", PageNumber: 1, SequenceIndex: 0, Text: "abc"},
		{ID: "a1", DocumentID: doc.ID, SourceDocument: "a.pdf", PageNumber: 1, SequenceIndex: 1, Text: "café"},
	}); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	lengths, err = repo.TextLengths(ctx)
	if err != nil {
		t.Fatalf("TextLengths() error = %v", err)
	}
	sum := 0
	for _, n := range lengths {
		sum += n
	}
	if len(lengths) != 2 || sum != 7 {
		t.Errorf("TextLengths() = %v, want two lengths summing to 7 characters", lengths)
	}
}
