package backend

import (
	"context"
	"fmt"

	"cajero/internal/log"
	"cajero/internal/storage"
)

// Factory opens blob stores.
type Factory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &Factory{logger: logger.WithComponent(log.ComponentBackend)}
}

// Open validates cfg and opens the store it names.
func (f *Factory) Open(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		store storage.BlobStore
		err   error
	)
	switch cfg.Type {
	case FileBackend:
		store, err = storage.NewFileStore(cfg.DataDir)
	case SQLiteBackend:
		store, err = storage.NewSQLiteStore(cfg.SQLiteDBPath)
	case RedisBackend:
		store, err = storage.NewRedisStore(ctx, storage.RedisConfig{
			Addrs:    cfg.RedisAddrs,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case MemoryBackend:
		store = storage.NewMemoryStore()
	}
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Type, err)
	}

	f.logger.InfoContext(ctx, "Initialized storage backend", "backend", cfg.Type.String(),
		"data_dir", cfg.DataDir, "db_path", cfg.SQLiteDBPath, "redis_addrs", cfg.RedisAddrs)

	return &Result{Store: store, Ready: readiness(store)}, nil
}

func readiness(store storage.BlobStore) func(context.Context) error {
	p, ok := store.(Pinger)
	if !ok {
		return func(context.Context) error { return nil }
	}
	return p.Ping
}
