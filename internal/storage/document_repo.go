package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentStore defines the interface for document storage operations.
type DocumentStore interface {
	// GetByName gets a document by file name. Returns ErrNotFound if not found.
	GetByName(ctx context.Context, name string) (*DocumentRecord, error)
	// Upsert inserts a new document or updates an existing one, keyed by name.
	Upsert(ctx context.Context, doc *DocumentRecord) error
	// List returns all documents ordered by name.
	List(ctx context.Context) ([]*DocumentRecord, error)
	// Delete removes a document and, by cascade, its chunks.
	Delete(ctx context.Context, id string) error
	// Count returns the number of documents.
	Count(ctx context.Context) (int, error)
}

// DocumentRepo provides methods for document operations.
// It implements the DocumentStore interface.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

const documentColumns = "id, name, path, source_type, hash, page_count, chunk_count, published_at, ingested_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*DocumentRecord, error) {
	var doc DocumentRecord
	var published sql.NullTime
	if err := row.Scan(&doc.ID, &doc.Name, &doc.Path, &doc.SourceType, &doc.Hash,
		&doc.PageCount, &doc.ChunkCount, &published, &doc.IngestedAt); err != nil {
		return nil, err
	}
	if published.Valid {
		t := published.Time
		doc.PublishedAt = &t
	}
	return &doc, nil
}

// GetByName gets a document by file name.
// Returns nil and ErrNotFound if not found.
func (r *DocumentRepo) GetByName(ctx context.Context, name string) (*DocumentRecord, error) {
	doc, err := scanDocument(r.db.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE name = ?", name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	return doc, nil
}

// Upsert inserts a new document or updates an existing one.
// New documents get a UUID; existing documents keep their ID.
func (r *DocumentRepo) Upsert(ctx context.Context, doc *DocumentRecord) error {
	existing, err := r.GetByName(ctx, doc.Name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to check existing document: %w", err)
	}

	if existing != nil {
		doc.ID = existing.ID
	} else if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.IngestedAt = time.Now().UTC()

	var published any
	if doc.PublishedAt != nil {
		published = doc.PublishedAt.UTC()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO documents (id, name, path, source_type, hash, page_count, chunk_count, published_at, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET
		 path = excluded.path, source_type = excluded.source_type, hash = excluded.hash,
		 page_count = excluded.page_count, chunk_count = excluded.chunk_count,
		 published_at = excluded.published_at, ingested_at = excluded.ingested_at`,
		doc.ID, doc.Name, doc.Path, doc.SourceType, doc.Hash, doc.PageCount, doc.ChunkCount, published, doc.IngestedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

// List returns all documents ordered by name.
func (r *DocumentRepo) List(ctx context.Context) ([]*DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+documentColumns+" FROM documents ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	docs := []*DocumentRecord{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return docs, nil
}

// Delete removes a document and its chunks.
func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Count returns the number of documents.
func (r *DocumentRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}
