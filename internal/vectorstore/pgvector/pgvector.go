package pgvector

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"docsearch/internal/domain"
	"docsearch/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

// Storage keeps vectors in a PostgreSQL table using the pgvector extension.
// The table is created on Init once the embedding dimension is known.
type Storage struct {
	pool  *pgxpool.Pool
	table string
	ident string
}

type Config struct {
	DSN   string
	Table string
}

// NewStorage connects to PostgreSQL and verifies the connection.
func NewStorage(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Table == "" {
		cfg.Table = "document_chunks"
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create connection pool: %v", domain.ErrIndexUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", domain.ErrIndexUnavailable, err)
	}
	return &Storage{
		pool:  pool,
		table: cfg.Table,
		ident: pgx.Identifier{cfg.Table}.Sanitize(),
	}, nil
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id uuid PRIMARY KEY,
			document_id text NOT NULL,
			content text NOT NULL,
			embedding vector(%d) NOT NULL
		)`, s.ident, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (document_id)`,
			pgx.Identifier{s.table + "_document_id_idx"}.Sanitize(), s.ident),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: init schema: %v", domain.ErrIndexUnavailable, err)
		}
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, vectors []domain.IndexedVector) error {
	if len(vectors) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, document_id, content, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET document_id = EXCLUDED.document_id, content = EXCLUDED.content, embedding = EXCLUDED.embedding`, s.ident)
	batch := &pgx.Batch{}
	for _, v := range vectors {
		batch.Queue(query, v.ID, v.DocumentID, v.Text, pgv.NewVector(v.Vector))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%w: upsert: %v", domain.ErrIndexUnavailable, err)
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int, documentID string) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	ok, err := s.tableExists(ctx)
	if err != nil || !ok {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT document_id, content, embedding <=> $1 AS distance
		FROM %s
		WHERE ($2 = '' OR document_id = $2)
		ORDER BY distance
		LIMIT $3`, s.ident)
	rows, err := s.pool.Query(ctx, query, pgv.NewVector(vector), documentID, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", domain.ErrIndexUnavailable, err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SearchResult, error) {
		var r domain.SearchResult
		err := row.Scan(&r.DocumentID, &r.Text, &r.Distance)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", domain.ErrIndexUnavailable, err)
	}
	return results, nil
}

func (s *Storage) DeleteByDocument(ctx context.Context, documentID string) error {
	ok, err := s.tableExists(ctx)
	if err != nil || !ok {
		return err
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, s.ident), documentID); err != nil {
		return fmt.Errorf("%w: delete: %v", domain.ErrIndexUnavailable, err)
	}
	return nil
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func (s *Storage) tableExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, s.ident).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	return exists, nil
}
