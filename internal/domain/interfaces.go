package domain

import (
	"context"
	"iter"
	"time"
)

// Document represents a single uploaded file after text extraction.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk is a bounded, retrievable segment of a document's text.
type Chunk struct {
	DocumentID string
	Index      int
	Text       string
}

// IndexedVector is a stored chunk with its embedding.
type IndexedVector struct {
	ID         string
	DocumentID string
	Text       string
	Vector     []float32
}

// SearchResult represents a matching chunk with its distance to the query.
// Lower distance means more similar.
type SearchResult struct {
	DocumentID string
	Text       string
	Distance   float64
}

// Embedder converts free text into a fixed-dimension vector.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// VectorIndex stores document chunks and answers similarity queries scoped by document.
type VectorIndex interface {
	Add(ctx context.Context, documentID string, texts []string) error
	Search(ctx context.Context, query string, k int, documentID string) ([]string, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Summarizer produces a brief extractive summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Extractor turns raw uploaded bytes into plain text.
type Extractor interface {
	Extract(data []byte, fileType string) (string, error)
}

// HistoryKind distinguishes stored history records.
type HistoryKind string

const (
	HistorySearch   HistoryKind = "search"
	HistoryAnalysis HistoryKind = "analysis"
)

// HistoryRecord is one append-only entry of a principal's activity.
type HistoryRecord struct {
	ID          int64       `json:"id"`
	PrincipalID string      `json:"user_id"`
	Kind        HistoryKind `json:"kind"`
	Subject     string      `json:"subject"`
	Result      string      `json:"result"`
	ModelUsed   string      `json:"model_used"`
	CreatedAt   time.Time   `json:"created_at"`
}

// HistoryStore persists search and analysis history keyed by principal.
type HistoryStore interface {
	Append(ctx context.Context, rec HistoryRecord) (int64, error)
	List(ctx context.Context, principalID string, kind HistoryKind, skip, limit int) ([]HistoryRecord, error)
	Close() error
}

// QueryRequest is a single question routed to a provider.
type QueryRequest struct {
	Query      string `json:"query" validate:"required"`
	Provider   string `json:"model" validate:"required"`
	Model      string `json:"model_name" validate:"required"`
	DocumentID string `json:"document_id,omitempty"`
	UseRAG     bool   `json:"use_rag"`
}

// RAGService defines the operations exposed by the application core.
type RAGService interface {
	ListModels(ctx context.Context) map[string][]string
	Ingest(ctx context.Context, documentID, rawText string) (string, error)
	Query(ctx context.Context, req QueryRequest) iter.Seq[StreamToken]
	Purge(ctx context.Context, documentID string) error
}
