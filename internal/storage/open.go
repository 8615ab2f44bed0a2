package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/your-org/facesort/internal/config"
)

// Open connects the document store named by cfg.Driver and prepares its schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (DocumentStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := NewPostgresStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case config.DriverMongo:
		s, err := NewMongoStore(ctx, cfg.URI, cfg.Name)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case config.DriverMemory:
		slog.Warn("using in-memory document store; records are lost on exit")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// OpenBlobs builds the blob backend named by cfg.Storage.Backend.
func OpenBlobs(ctx context.Context, cfg *config.Config) (BlobStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendMinIO:
		b, err := NewMinIOBlobs(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		if err := b.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		return b, nil
	case config.BackendLocal:
		return NewLocalBlobs(cfg.Storage.LocalDir)
	case config.BackendMemory:
		return NewMemoryBlobs(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
