package main

import (
	"context"
	"fmt"

	"rentledger/internal/config"
	"rentledger/internal/storage"
)

// openBackend returns the snapshot backend selected by storage.driver and a
// function releasing it.
func openBackend(ctx context.Context, cfg *config.Config) (storage.SnapshotBackend, func(), error) {
	if cfg.Storage.Driver != "postgres" {
		return storage.NewFileBackend(cfg.Storage.Path), func() {}, nil
	}

	pg, err := storage.NewPostgresBackend(cfg.Storage.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return pg, func() { pg.Close() }, nil
}
