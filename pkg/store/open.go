package store

import (
	"context"
	"fmt"

	"github.com/xhad/askgov/pkg/config"
)

// Open builds the collection for the configured store type.
func Open(ctx context.Context, cfg *config.Config) (*Collection, error) {
	var (
		backend Backend
		err     error
	)

	switch cfg.Store.Type {
	case config.StoreFile:
		backend, err = NewFileBackend(cfg.FilePath())
	case config.StoreMemory:
		backend = NewMemoryBackend()
	case config.StoreSQLite:
		backend, err = NewSQLiteBackend(cfg.SQLiteFile())
	case config.StorePostgres:
		backend, err = NewPostgresBackend(ctx, PostgresConfig{
			ConnString: cfg.Store.DatabaseURL,
			TableName:  cfg.Store.TableName,
			VectorDim:  cfg.Store.VectorDim,
		})
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Store.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Type, err)
	}

	return NewCollection(backend), nil
}
