// Package history persists per-principal search and analysis records in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"docsearch/internal/domain"
)

var _ domain.HistoryStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    principal_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    subject TEXT NOT NULL,
    result TEXT NOT NULL,
    model_used TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_principal ON history (principal_id, kind, created_at);
`

// Store is an append-only SQLite history store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db %s: %w", path, err)
	}
	// a single connection serializes writers
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Append(ctx context.Context, rec domain.HistoryRecord) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO history (principal_id, kind, subject, result, model_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.PrincipalID, string(rec.Kind), rec.Subject, rec.Result, rec.ModelUsed, rec.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("append history: %w", err)
	}
	return res.LastInsertId()
}

// List returns the principal's records of kind, newest first.
func (s *Store) List(ctx context.Context, principalID string, kind domain.HistoryKind, skip, limit int) ([]domain.HistoryRecord, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, principal_id, kind, subject, result, model_used, created_at
		 FROM history
		 WHERE principal_id = ? AND kind = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		principalID, string(kind), limit, skip,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	out := []domain.HistoryRecord{}
	for rows.Next() {
		var (
			rec       domain.HistoryRecord
			kindStr   string
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.PrincipalID, &kindStr, &rec.Subject, &rec.Result, &rec.ModelUsed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Kind = domain.HistoryKind(kindStr)
		rec.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }
