package vectorstore

import (
	"context"

	"docsearch/internal/domain"
)

// Storage persists vectors and supports similarity search scoped by document.
// Upsert and DeleteByDocument must be visible to Search calls issued after
// they return.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, vectors []domain.IndexedVector) error
	// Search returns at most topK results ordered by ascending distance. An empty
	// documentID searches the whole store.
	Search(ctx context.Context, vector []float32, topK int, documentID string) ([]domain.SearchResult, error)
	DeleteByDocument(ctx context.Context, documentID string) error
	Close() error
}
