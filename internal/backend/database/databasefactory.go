package database

import (
	"context"
	"fmt"
	"log/slog"
)

func NewGalleryStore(ctx context.Context, cfg StoreConfig) (store GalleryStore, err error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.Key == "" {
		cfg.Key = DefaultGalleryKey
	}

	switch cfg.Type {
	case "redis":
		store, err = NewRedisGalleryStore(ctx, cfg.RedisURL, cfg.Key, cfg.MaxEntries)
	case "sqlite":
		store, err = NewSQLiteGalleryStore(ctx, cfg.SQLitePath, cfg.MaxEntries)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s gallery store: %w", cfg.Type, err)
	}

	slog.Info("gallery store ready", "type", cfg.Type, "max_entries", cfg.MaxEntries)
	return store, nil
}
