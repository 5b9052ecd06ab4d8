package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/hanjadb/hanjadb/internal/cache"
	"github.com/hanjadb/hanjadb/internal/config"
	"github.com/hanjadb/hanjadb/internal/database"
	"github.com/hanjadb/hanjadb/internal/dictionary"
	"github.com/hanjadb/hanjadb/internal/gather"
	"github.com/hanjadb/hanjadb/internal/lookup"
	"github.com/hanjadb/hanjadb/internal/merge"
	"github.com/hanjadb/hanjadb/internal/source"
	"github.com/hanjadb/hanjadb/internal/validate"
)

// Pipeline holds the assembled lookup service and the resources behind it.
type Pipeline struct {
	DB        *sqlx.DB
	Repo      *dictionary.DBRepository
	Cache     *cache.Layer
	Validator *validate.Validator
	Service   *lookup.Service
}

// OpenStore opens the configured database and registers its release with app.
func OpenStore(app *App, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("database.Open > %w", err)
	}
	app.AddShutdownHook(func(context.Context) error {
		return db.Close()
	})
	return db, nil
}

// Build opens the store and the cache and assembles the lookup service. An
// unreachable cache is logged and the service runs without it.
func Build(ctx context.Context, app *App, cfg *config.Config) (*Pipeline, error) {
	db, err := OpenStore(app, cfg.Database)
	if err != nil {
		return nil, err
	}

	layer := cache.NewLayer(cfg.Cache)
	app.AddShutdownHook(func(context.Context) error {
		return layer.Close()
	})
	if err := layer.Connect(ctx); err != nil {
		slog.Warn("continuing without cache", "error", err)
	}

	adapters, err := source.NewAdapters(cfg.Sources)
	if err != nil {
		return nil, fmt.Errorf("source.NewAdapters > %w", err)
	}
	for _, adapter := range adapters {
		if closer, ok := adapter.(io.Closer); ok {
			app.AddShutdownHook(func(context.Context) error {
				return closer.Close()
			})
		}
	}

	validator, err := validate.New()
	if err != nil {
		return nil, fmt.Errorf("validate.New > %w", err)
	}

	repo := dictionary.NewDBRepository(db)
	service := lookup.NewService(
		layer,
		gather.New(adapters, cfg.Sources.GatherTimeout),
		repo,
		merge.NewEngine(source.Names(adapters), cfg.Merge.MaxExamples),
		validator,
		lookup.Options{
			PersistMode:      dictionary.UpsertMode(cfg.Lookup.PersistMode),
			StoreReadThrough: cfg.Lookup.StoreReadThrough,
			DedupeInflight:   cfg.Lookup.DedupeInflight,
		},
	)
	slog.Debug("lookup pipeline ready",
		"sources", source.Names(adapters),
		"database", cfg.Database.Driver,
		"cache", layer.State().String())

	return &Pipeline{
		DB:        db,
		Repo:      repo,
		Cache:     layer,
		Validator: validator,
		Service:   service,
	}, nil
}
