package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukerupert/galactic-archives/internal/config"
	"github.com/dukerupert/galactic-archives/internal/database"
	"github.com/dukerupert/galactic-archives/internal/store"
	"github.com/dukerupert/galactic-archives/internal/store/mongostore"
	"github.com/dukerupert/galactic-archives/internal/store/sqlitestore"
)

// openStore connects the configured backend and brings its schema up to
// date: goose migrations for SQLite, indexes for MongoDB.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case "mongo":
		client, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoTimeout)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.MongoDatabase)

		idxCtx, cancel := context.WithTimeout(ctx, cfg.MongoTimeout)
		defer cancel()
		if err := database.EnsureIndexes(idxCtx, db); err != nil {
			client.Disconnect(context.Background())
			return nil, err
		}
		logger.Info("connected to mongodb", "database", cfg.MongoDatabase)
		return mongostore.New(db, nil), nil

	case "sqlite":
		db, err := database.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("opened sqlite database", "path", cfg.SQLitePath)
		return sqlitestore.New(db, nil), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
