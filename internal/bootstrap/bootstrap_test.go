package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanjadb/hanjadb/internal/cache"
	"github.com/hanjadb/hanjadb/internal/config"
	"github.com/hanjadb/hanjadb/internal/database"
	"github.com/hanjadb/hanjadb/internal/dictionary"
)

func TestApp_Run(t *testing.T) {
	t.Run("run returns nil", func(t *testing.T) {
		app := New()
		err := app.Run(context.Background(), func(ctx context.Context) error {
			return nil
		})
		assert.NoError(t, err)
	})

	t.Run("run returns error", func(t *testing.T) {
		app := New()
		want := errors.New("run failed")
		err := app.Run(context.Background(), func(ctx context.Context) error {
			return want
		})
		assert.ErrorIs(t, err, want)
	})

	t.Run("shutdown hooks run in reverse order on context cancel", func(t *testing.T) {
		app := New()
		var mu sync.Mutex
		var order []string
		for _, name := range []string{"database", "cache", "server"} {
			app.AddShutdownHook(func(ctx context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				order = append(order, name)
				return nil
			})
		}

		ctx, cancel := context.WithCancel(context.Background())
		err := app.Run(ctx, func(ctx context.Context) error {
			cancel()
			<-ctx.Done()
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"server", "cache", "database"}, order)
	})

	t.Run("hook errors are joined", func(t *testing.T) {
		app := New()
		app.AddShutdownHook(func(ctx context.Context) error { return errors.New("close database") })
		app.AddShutdownHook(func(ctx context.Context) error { return errors.New("close cache") })

		ctx, cancel := context.WithCancel(context.Background())
		err := app.Run(ctx, func(ctx context.Context) error {
			cancel()
			<-ctx.Done()
			return nil
		})
		assert.EqualError(t, err, "close cache\nclose database")
	})
}

func TestApp_Close(t *testing.T) {
	app := New()
	calls := 0
	app.AddShutdownHook(func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, app.Close(context.Background()))
	require.NoError(t, app.Close(context.Background()))
	assert.Equal(t, 1, calls)
}

func testConfig(t *testing.T, cacheURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "hanja.db"),
		},
		Cache: config.CacheConfig{
			Enabled:       cacheURL != "",
			URL:           cacheURL,
			KeyPrefix:     "hanja:",
			TTL:           time.Hour,
			RetryAttempts: 1,
			MaxFailures:   3,
		},
		Sources: config.SourcesConfig{
			Priority:       []string{"naver", "daum", "national"},
			UserAgent:      "hanjadb-test",
			GatherTimeout:  time.Second,
			RequestTimeout: time.Second,
			RatePerSecond:  10,
			Burst:          1,
			Naver:          config.EndpointConfig{URL: "http://127.0.0.1:1/naver?query={key}"},
			Daum:           config.EndpointConfig{URL: "http://127.0.0.1:1/daum?q={key}"},
			National:       config.EndpointConfig{URL: "http://127.0.0.1:1/national?searchKeyword={key}"},
		},
		Merge:  config.MergeConfig{MaxExamples: 3},
		Lookup: config.LookupConfig{PersistMode: "overwrite", StoreReadThrough: true, DedupeInflight: true},
	}
}

func TestBuild(t *testing.T) {
	water := dictionary.Record{Traditional: "水", KoreanPronunciation: "수", Sources: []string{"naver"}}

	t.Run("serves stored records through the cache", func(t *testing.T) {
		mr := miniredis.RunT(t)
		app := New()
		t.Cleanup(func() { _ = app.Close(context.Background()) })

		pipeline, err := Build(context.Background(), app, testConfig(t, "redis://"+mr.Addr()))
		require.NoError(t, err)
		assert.Equal(t, cache.StateConnected, pipeline.Cache.State())

		_, err = database.Migrate(context.Background(), pipeline.DB)
		require.NoError(t, err)
		require.NoError(t, pipeline.Repo.Upsert(context.Background(), water, dictionary.UpsertOverwrite))

		result, err := pipeline.Service.Lookup(context.Background(), "水")
		require.NoError(t, err)
		assert.True(t, result.FromStore)
		assert.Equal(t, water, result.Record)
		assert.True(t, mr.Exists("hanja:水"))

		result, err = pipeline.Service.Lookup(context.Background(), "水")
		require.NoError(t, err)
		assert.True(t, result.CacheHit)
	})

	t.Run("runs without a cache", func(t *testing.T) {
		app := New()
		t.Cleanup(func() { _ = app.Close(context.Background()) })

		pipeline, err := Build(context.Background(), app, testConfig(t, ""))
		require.NoError(t, err)
		assert.Equal(t, cache.StateDisabled, pipeline.Cache.State())

		removed, outcome := pipeline.Service.InvalidateCache(context.Background(), "")
		assert.Zero(t, removed)
		assert.Equal(t, cache.Degraded, outcome)
	})

	t.Run("unknown source", func(t *testing.T) {
		cfg := testConfig(t, "")
		cfg.Sources.Priority = []string{"naver", "wiktionary"}

		app := New()
		t.Cleanup(func() { _ = app.Close(context.Background()) })

		_, err := Build(context.Background(), app, cfg)
		assert.ErrorContains(t, err, `unknown source "wiktionary"`)
	})
}
