package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"docsearch/internal/domain"
)

var _ domain.VectorIndex = (*Index)(nil)

// Index embeds texts with an Embedder and keeps the vectors in a Storage backend.
type Index struct {
	embedder domain.Embedder
	store    Storage

	mu        sync.Mutex
	dimension int
}

// NewIndex couples an embedder with a storage backend.
func NewIndex(embedder domain.Embedder, store Storage) *Index {
	return &Index{embedder: embedder, store: store}
}

// Add embeds each text and stores it under documentID.
func (ix *Index) Add(ctx context.Context, documentID string, texts []string) error {
	if documentID == "" {
		return fmt.Errorf("%w: empty document id", domain.ErrInvalidArgument)
	}
	if len(texts) == 0 {
		return nil
	}
	vecs, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vecs) != len(texts) {
		return fmt.Errorf("embed chunks: got %d vectors for %d texts", len(vecs), len(texts))
	}
	if err := ix.ensureInit(ctx, len(vecs[0])); err != nil {
		return err
	}

	items := make([]domain.IndexedVector, len(texts))
	for i := range texts {
		if len(vecs[i]) != ix.dimension {
			return fmt.Errorf("%w: vector dimension %d, index dimension %d", domain.ErrInvalidArgument, len(vecs[i]), ix.dimension)
		}
		items[i] = domain.IndexedVector{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			Text:       texts[i],
			Vector:     vecs[i],
		}
	}
	return ix.store.Upsert(ctx, items)
}

// Search returns the k texts closest to query, most similar first.
func (ix *Index) Search(ctx context.Context, query string, k int, documentID string) ([]string, error) {
	if k <= 0 {
		return nil, nil
	}
	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := ix.store.Search(ctx, vec, k, documentID)
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.Text)
	}
	return texts, nil
}

// DeleteByDocument removes every vector of documentID. Unknown ids are a no-op.
func (ix *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: empty document id", domain.ErrInvalidArgument)
	}
	return ix.store.DeleteByDocument(ctx, documentID)
}

// Close releases the storage backend.
func (ix *Index) Close() error { return ix.store.Close() }

func (ix *Index) ensureInit(ctx context.Context, dimension int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.dimension != 0 {
		return nil
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: embedder returned empty vector", domain.ErrInvalidArgument)
	}
	if err := ix.store.Init(ctx, dimension); err != nil {
		return err
	}
	ix.dimension = dimension
	return nil
}
