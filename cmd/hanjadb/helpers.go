package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/hanjadb/hanjadb/internal/bootstrap"
	"github.com/hanjadb/hanjadb/internal/config"
	"github.com/hanjadb/hanjadb/internal/dictionary"
)

func loadConfig() (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}
	return loader.Load()
}

// runWithPipeline builds the full lookup pipeline and runs fn with it. All
// resources are released when fn returns or the process is interrupted.
func runWithPipeline(ctx context.Context, fn func(ctx context.Context, p *bootstrap.Pipeline) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loadConfig() > %w", err)
	}

	app := bootstrap.New()
	defer closeApp(app)

	pipeline, err := bootstrap.Build(ctx, app, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap.Build() > %w", err)
	}
	return app.Run(ctx, func(ctx context.Context) error {
		return fn(ctx, pipeline)
	})
}

// runWithStore opens only the database, for commands that never query the
// online dictionaries.
func runWithStore(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, db *sqlx.DB, repo *dictionary.DBRepository) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loadConfig() > %w", err)
	}

	app := bootstrap.New()
	defer closeApp(app)

	db, err := bootstrap.OpenStore(app, cfg.Database)
	if err != nil {
		return err
	}
	repo := dictionary.NewDBRepository(db)
	return app.Run(ctx, func(ctx context.Context) error {
		return fn(ctx, cfg, db, repo)
	})
}

func closeApp(app *bootstrap.App) {
	if err := app.Close(context.Background()); err != nil {
		slog.Warn("failed to release resources", "error", err)
	}
}
