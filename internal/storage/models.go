package storage

import "time"

// DocumentRecord is one ingested report file.
type DocumentRecord struct {
	ID          string // UUID
	Name        string // Path relative to the reports directory, e.g. "2025/report_march.pdf"; unique
	Path        string
	SourceType  string
	Hash        string // SHA256 hex string of file content
	PageCount   int
	ChunkCount  int
	PublishedAt *time.Time // Inferred from the file name when possible
	IngestedAt  time.Time
}

// ChunkRecord is a text fragment of a document, indexed for vector search.
type ChunkRecord struct {
	ID             string // "<stem>_page<N>_chunk<M>", also the vector point ID
	DocumentID     string // Foreign key to documents.id
	SourceDocument string // Document name relative to the reports directory
	PageNumber     int    // 1-based
	SequenceIndex  int    // Strictly increasing within a document
	Text           string
}
