package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/joho/godotenv"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/hanjadb/hanjadb/internal/bootstrap"
	"github.com/hanjadb/hanjadb/internal/config"
	"github.com/hanjadb/hanjadb/internal/database"
	"github.com/hanjadb/hanjadb/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	setupLogger(os.Getenv("HANJADB_DEBUG") != "")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loadConfig() > %w", err)
	}

	ctx := context.Background()
	app := bootstrap.New()
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			slog.Warn("failed to release resources", "error", err)
		}
	}()

	pipeline, err := bootstrap.Build(ctx, app, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap.Build() > %w", err)
	}
	applied, err := database.Migrate(ctx, pipeline.DB)
	if err != nil {
		return fmt.Errorf("database.Migrate() > %w", err)
	}
	slog.Info("database schema ready", "migrations", applied)

	handler, err := newHandler(pipeline, cfg.Server.CORS.AllowedOrigins)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	app.AddShutdownHook(srv.Shutdown)

	slog.Info("starting server", "addr", srv.Addr)
	return app.Run(ctx, func(context.Context) error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
}

func newHandler(pipeline *bootstrap.Pipeline, allowedOrigins []string) (http.Handler, error) {
	hanjaHandler, err := server.NewHanjaHandler(pipeline.Service)
	if err != nil {
		return nil, fmt.Errorf("server.NewHanjaHandler() > %w", err)
	}
	path, h := server.NewHanjaServiceHandler(hanjaHandler,
		connect.WithInterceptors(server.NewLoggingInterceptor()),
	)

	mux := http.NewServeMux()
	mux.Handle(path, h)
	return corsMiddleware(h2c.NewHandler(mux, &http2.Server{}), allowedOrigins), nil
}

func loadConfig() (*config.Config, error) {
	configFile := os.Getenv("HANJADB_CONFIG")
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("config.NewConfigLoader() > %w", err)
	}
	return loader.Load()
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{AddSource: true, Level: level})))
}

// corsMiddleware echoes the request origin when it is allowed. "*" in
// allowedOrigins allows every origin.
func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	allowAll := slices.Contains(allowedOrigins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || slices.Contains(allowedOrigins, origin)) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
				"Content-Type", "Connect-Protocol-Version", "Connect-Timeout-Ms", server.RequestIDHeader,
			}, ", "))
			w.Header().Set("Access-Control-Expose-Headers", server.RequestIDHeader)
			w.Header().Set("Access-Control-Max-Age", "3600")
		}
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
