package qdrant

import (
	"context"
	"errors"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"docsearch/internal/domain"
	"docsearch/internal/vectorstore"
)

const (
	payloadDocumentID = "document_id"
	payloadText       = "text"
)

var _ vectorstore.Storage = (*Storage)(nil)

// Storage keeps vectors in a Qdrant collection over gRPC.
// It assumes cosine distance and creates the collection if missing.
type Storage struct {
	client     *qdrant.Client
	collection string
}

type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant: collection name is required")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant client: %v", domain.ErrIndexUnavailable, err)
	}
	return &Storage{client: client, collection: cfg.Collection}, nil
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: create collection: %v", domain.ErrIndexUnavailable, err)
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, vectors []domain.IndexedVector) error {
	if len(vectors) == 0 {
		return nil
	}
	pts := make([]*qdrant.PointStruct, len(vectors))
	for i, v := range vectors {
		pts[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(v.ID),
			Vectors: qdrant.NewVectors(v.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadDocumentID: v.DocumentID,
				payloadText:       v.Text,
			}),
		}
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         pts,
	})
	if err != nil {
		return fmt.Errorf("%w: upsert: %v", domain.ErrIndexUnavailable, err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int, documentID string) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	// nothing has been written yet
	if !exists {
		return nil, nil
	}
	limit := uint64(topK)
	var filter *qdrant.Filter
	if documentID != "" {
		filter = documentFilter(documentID)
	}
	resp, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", domain.ErrIndexUnavailable, err)
	}
	out := make([]domain.SearchResult, 0, len(resp))
	for _, r := range resp {
		out = append(out, domain.SearchResult{
			DocumentID: r.GetPayload()[payloadDocumentID].GetStringValue(),
			Text:       r.GetPayload()[payloadText].GetStringValue(),
			// qdrant reports cosine similarity
			Distance: 1 - float64(r.GetScore()),
		})
	}
	return out, nil
}

func (s *Storage) DeleteByDocument(ctx context.Context, documentID string) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	if !exists {
		return nil
	}
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(documentFilter(documentID)),
	})
	if err != nil {
		return fmt.Errorf("%w: delete: %v", domain.ErrIndexUnavailable, err)
	}
	return nil
}

func (s *Storage) Close() error { return s.client.Close() }

func documentFilter(documentID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentID, documentID)},
	}
}
