// internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

const defaultSnapshotName = "default"

// PostgresBackend stores the snapshot as one JSONB row, keyed by name.
type PostgresBackend struct {
	DB   *sql.DB
	name string
}

func NewPostgresBackend(dsn string) (*PostgresBackend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	return NewPostgresBackendFromDB(db), nil
}

func NewPostgresBackendFromDB(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{DB: db, name: defaultSnapshotName}
}

// EnsureSchema creates the snapshot table if not exists
func (p *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rentledger_snapshots (
			name       TEXT PRIMARY KEY,
			document   JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create snapshot table: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Read(ctx context.Context) ([]byte, error) {
	var doc string
	err := p.DB.QueryRowContext(ctx,
		`SELECT document FROM rentledger_snapshots WHERE name = $1`, p.name,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	return []byte(doc), nil
}

func (p *PostgresBackend) Write(ctx context.Context, doc []byte) error {
	_, err := p.DB.ExecContext(ctx, `
		INSERT INTO rentledger_snapshots (name, document, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE
		SET document = EXCLUDED.document, updated_at = NOW()`,
		p.name, string(doc),
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (p *PostgresBackend) Close() error {
	return p.DB.Close()
}
