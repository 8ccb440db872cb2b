package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rickgao/barsync/internal/config"
	"github.com/rickgao/barsync/internal/model"
)

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case config.StoreMemory, "":
		logger.Info("using in-memory bar store")
		return NewMemory(), nil

	case config.StoreMongo:
		s, err := ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to mongo bar store", "database", cfg.Mongo.Database)
		return s, nil

	case config.StorePostgres:
		s, err := ConnectPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to postgres bar store",
			"host", cfg.Postgres.Host,
			"database", cfg.Postgres.Name,
			"schema", cfg.Postgres.Schema,
		)
		return s, nil

	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", model.ErrConfig, cfg.Driver)
	}
}
