package memory

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"

	"docsearch/internal/domain"
	"docsearch/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

// Storage is a simple in-memory vector store using brute-force cosine distance.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	items     []domain.IndexedVector
	byID      map[string]int
}

func NewStorage() *Storage { return &Storage{byID: make(map[string]int)} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension {
		return errors.New("vector dimension mismatch")
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(_ context.Context, vectors []domain.IndexedVector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v.Vector) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	for _, v := range vectors {
		if i, ok := s.byID[v.ID]; ok {
			s.items[i] = v
			continue
		}
		s.byID[v.ID] = len(s.items)
		s.items = append(s.items, v)
	}
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, topK int, documentID string) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		return nil, nil
	}
	var results []domain.SearchResult
	for _, it := range s.items {
		if documentID != "" && it.DocumentID != documentID {
			continue
		}
		results = append(results, domain.SearchResult{
			DocumentID: it.DocumentID,
			Text:       it.Text,
			Distance:   1 - cosine(it.Vector, vector),
		})
	}
	slices.SortStableFunc(results, func(a, b domain.SearchResult) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (s *Storage) DeleteByDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = slices.DeleteFunc(s.items, func(it domain.IndexedVector) bool {
		return it.DocumentID == documentID
	})
	clear(s.byID)
	for i, it := range s.items {
		s.byID[it.ID] = i
	}
	return nil
}

// Len reports the number of stored vectors.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Storage) Close() error { return nil }

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
