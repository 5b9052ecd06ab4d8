package lookup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/hanjadb/hanjadb/internal/cache"
	"github.com/hanjadb/hanjadb/internal/config"
	"github.com/hanjadb/hanjadb/internal/dictionary"
	"github.com/hanjadb/hanjadb/internal/gather"
	"github.com/hanjadb/hanjadb/internal/merge"
	mock_dictionary "github.com/hanjadb/hanjadb/internal/mocks/dictionary"
	mock_lookup "github.com/hanjadb/hanjadb/internal/mocks/lookup"
	"github.com/hanjadb/hanjadb/internal/source"
	"github.com/hanjadb/hanjadb/internal/validate"
)

var waterPartials = []dictionary.PartialRecord{
	{Traditional: "水", KoreanPronunciation: "수", Meaning: "", Source: "A"},
	{Traditional: "水", Meaning: "물 수", StrokeCount: 4, Source: "B"},
}

var water = dictionary.Record{
	Traditional:         "水",
	KoreanPronunciation: "수",
	Meaning:             "물 수",
	StrokeCount:         4,
	Sources:             []string{"A", "B"},
}

func newValidator(t *testing.T) *validate.Validator {
	t.Helper()
	v, err := validate.New()
	require.NoError(t, err)
	return v
}

func newEngine() *merge.Engine {
	return merge.NewEngine([]string{"A", "B", "C"}, 3)
}

func TestService_Lookup(t *testing.T) {
	storeErr := errors.New("connection reset")

	tests := []struct {
		name        string
		opts        Options
		lookupOpts  []LookupOption
		setup       func(c *mock_lookup.MockCache, g *mock_lookup.MockGatherer, r *mock_dictionary.MockRepository)
		want        Result
		wantErr     error
		wantInvalid []validate.Kind
	}{
		{
			name: "cache hit skips the pipeline",
			opts: Options{StoreReadThrough: true},
			setup: func(c *mock_lookup.MockCache, g *mock_lookup.MockGatherer, r *mock_dictionary.MockRepository) {
				c.EXPECT().Get(gomock.Any(), dictionary.LookupKey("水")).Return(water, true)
			},
			want: Result{Record: water, CacheHit: true},
		},
		{
			name: "stored record is served and cached",
			opts: Options{StoreReadThrough: true},
			setup: func(c *mock_lookup.MockCache, g *mock_lookup.MockGatherer, r *mock_dictionary.MockRepository) {
				c.EXPECT().Get(gomock.Any(), dictionary.LookupKey("水")).Return(dictionary.Record{}, false)
				r.EXPECT().FindByKey(gomock.Any(), dictionary.LookupKey("水")).Return(water, nil)
				c.EXPECT().Set(gomock.Any(), dictionary.LookupKey("水"), water).Return(cache.OK)
			},
			want: Result{Record: water, FromStore: true},
		},
		{
			name: "miss runs the pipeline then caches and stores",
			opts: Options{StoreReadThrough: true, PersistMode: dictionary.UpsertInsertIfAbsent},
			setup: func(c *mock_lookup.MockCache, g *mock_lookup.MockGatherer, r *mock_dictionary.MockRepository) {
				c.EXPECT().Get(gomock.Any(), dictionary.LookupKey("水")).Return(dictionary.Record{}, false)
				r.EXPECT().FindByKey(gomock.Any(), dictionary.LookupKey("水")).Return(dictionary.Record{}, dictionary.ErrNotFound)
				g.EXPECT().Gather(gomock.Any(), dictionary.LookupKey("水")).Return(waterPartials)
				c.EXPECT().Set(gomock.Any(), dictionary.LookupKey("水"), water).Return(cache.OK)
				r.EXPECT().Upsert(gomock.Any(), water, dictionary.UpsertInsertIfAbsent).Return(nil)
			},
			want: Result{Record: water},
		},
		{
			name: "store read-through disabled",
			opts: Options{StoreReadThrough: false},
			setup: func(c *mock_lookup.MockCache, g *mock_lookup.MockGatherer, r *mock_dictionary.MockRepository) {
				c.EXPECT().Get(gomock.Any(), gomock.Any()).Return(dictionary.Record{}, false)
				g.EXPECT().Gather(gomock.Any(), dictionary.LookupKey("水")).Return(waterPartials)
				c.EXPECT().Set(gomock.Any(), gomock.Any(), water).Return(cache.OK)
				r.EXPECT().Upsert(gomock.Any(), water, dictionary.UpsertOverwrite).Return(nil)
			},
			want: Result{Record: water},
		},
		{
			name: "store read failure falls back to sources",
			opts: Options{StoreReadThrough: true},
			setup: func(c *mock_lookup.MockCache, g *mock_lookup.MockGatherer, r *mock_dictionary.MockRepository) {
				c.EXPECT().Get(gomock.Any(), gomock.Any()).Return(dictionary.Record{}, false)
				r.EXPECT().FindByKey(gomock.Any(), gomock.Any()).Return(dictionary.Record{}, storeErr)
				g.EXPECT().Gather(gomock.Any(), gomock.Any()).Return(waterPartials)
				c.EXPECT().Set(gomock.Any(), gomock.Any(), water).Return(cache.OK)
				r.EXPECT().Upsert(gomock.Any(), water, dictionary.UpsertOverwrite).Return(nil)
			},
			want: Result{Record: water},
		},
		{
			name: "store write failure still returns the record",
			setup: func(c *mock_lookup.MockCache, g *mock_lookup.MockGatherer, r *mock_dictionary.MockRepository) {
				c.EXPECT().Get(gomock.Any(), gomock.Any()).Return(dictionary.Record{}, false)
				g.EXPECT().Gather(gomock.Any(), gomock.Any()).Return(waterPartials)
				c.EXPECT().Set(gomock.Any(), gomock.Any(), water).Return(cache.OK)
				r.EXPECT().Upsert(gomock.Any(), water, dictionary.UpsertOverwrite).Return(storeErr)
			},
			want: Result{Record: water, StoreErr: storeErr},
		},
		{
			name: "degraded cache is not an error",
			setup: func(c *mock_lookup.MockCache, g *mock_lookup.MockGatherer, r *mock_dictionary.MockRepository) {
				c.EXPECT().Get(gomock.Any(), gomock.Any()).Return(dictionary.Record{}, false)
				g.EXPECT().Gather(gomock.Any(), gomock.Any()).Return(waterPartials)
				c.EXPECT().Set(gomock.Any(), gomock.Any(), water).Return(cache.Degraded)
				r.EXPECT().Upsert(gomock.Any(), water, dictionary.UpsertOverwrite).Return(nil)
			},
			want: Result{Record: water},
		},
		{
			name: "no source matched",
			setup: func(c *mock_lookup.MockCache, g *mock_lookup.MockGatherer, r *mock_dictionary.MockRepository) {
				c.EXPECT().Get(gomock.Any(), gomock.Any()).Return(dictionary.Record{}, false)
				g.EXPECT().Gather(gomock.Any(), gomock.Any()).Return(nil)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "invalid record is neither cached nor stored",
			setup: func(c *mock_lookup.MockCache, g *mock_lookup.MockGatherer, r *mock_dictionary.MockRepository) {
				c.EXPECT().Get(gomock.Any(), gomock.Any()).Return(dictionary.Record{}, false)
				g.EXPECT().Gather(gomock.Any(), gomock.Any()).Return([]dictionary.PartialRecord{
					{Traditional: "水", KoreanPronunciation: "수", StrokeCount: 70, Source: "A"},
				})
			},
			wantInvalid: []validate.Kind{validate.KindStrokeCount},
		},
		{
			name:       "refresh skips cache and store reads",
			opts:       Options{StoreReadThrough: true},
			lookupOpts: []LookupOption{WithRefresh()},
			setup: func(c *mock_lookup.MockCache, g *mock_lookup.MockGatherer, r *mock_dictionary.MockRepository) {
				g.EXPECT().Gather(gomock.Any(), gomock.Any()).Return(waterPartials)
				c.EXPECT().Set(gomock.Any(), gomock.Any(), water).Return(cache.OK)
				r.EXPECT().Upsert(gomock.Any(), water, dictionary.UpsertOverwrite).Return(nil)
			},
			want: Result{Record: water},
		},
		{
			name: "partials are normalized before the merge",
			setup: func(c *mock_lookup.MockCache, g *mock_lookup.MockGatherer, r *mock_dictionary.MockRepository) {
				c.EXPECT().Get(gomock.Any(), gomock.Any()).Return(dictionary.Record{}, false)
				g.EXPECT().Gather(gomock.Any(), gomock.Any()).Return([]dictionary.PartialRecord{
					{Traditional: " 水 ", KoreanPronunciation: "수(물), 슈", Meaning: "<b>물</b>   수", Source: "A"},
					{Traditional: "水", StrokeCount: 4, Source: "B"},
				})
				c.EXPECT().Set(gomock.Any(), gomock.Any(), water).Return(cache.OK)
				r.EXPECT().Upsert(gomock.Any(), water, dictionary.UpsertOverwrite).Return(nil)
			},
			want: Result{Record: water},
		},
	}

	for _, tt := range tests {
		for _, dedupe := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s/dedupe=%t", tt.name, dedupe), func(t *testing.T) {
				ctrl := gomock.NewController(t)
				c := mock_lookup.NewMockCache(ctrl)
				g := mock_lookup.NewMockGatherer(ctrl)
				r := mock_dictionary.NewMockRepository(ctrl)
				tt.setup(c, g, r)

				opts := tt.opts
				opts.DedupeInflight = dedupe
				service := NewService(c, g, r, newEngine(), newValidator(t), opts)

				got, err := service.Lookup(context.Background(), "水", tt.lookupOpts...)

				if len(tt.wantInvalid) > 0 {
					var vfe *ValidationFailedError
					require.ErrorAs(t, err, &vfe)
					kinds := make([]validate.Kind, 0, len(vfe.Violations))
					for _, v := range vfe.Violations {
						kinds = append(kinds, v.Kind)
					}
					assert.Equal(t, tt.wantInvalid, kinds)
					assert.Equal(t, dictionary.LookupKey("水"), vfe.Key)
					return
				}
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
					return
				}
				require.NoError(t, err)
				got.Conflicts = nil
				assert.Equal(t, tt.want, got)
			})
		}
	}
}

func TestService_Lookup_EmptyKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	service := NewService(mock_lookup.NewMockCache(ctrl), mock_lookup.NewMockGatherer(ctrl), nil, newEngine(), newValidator(t), Options{})

	_, err := service.Lookup(context.Background(), "   ")

	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestService_StoreOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("get details", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		r := mock_dictionary.NewMockRepository(ctrl)
		r.EXPECT().FindByKey(gomock.Any(), dictionary.LookupKey("水")).Return(water, nil)
		r.EXPECT().FindByKey(gomock.Any(), dictionary.LookupKey("火")).Return(dictionary.Record{}, dictionary.ErrNotFound)
		service := NewService(mock_lookup.NewMockCache(ctrl), mock_lookup.NewMockGatherer(ctrl), r, newEngine(), newValidator(t), Options{})

		got, err := service.GetDetails(ctx, "水")
		require.NoError(t, err)
		assert.Equal(t, water, got)

		_, err = service.GetDetails(ctx, "火")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("search", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		r := mock_dictionary.NewMockRepository(ctrl)
		r.EXPECT().Search(gomock.Any(), "물", 10).Return([]dictionary.Record{water}, nil)
		service := NewService(mock_lookup.NewMockCache(ctrl), mock_lookup.NewMockGatherer(ctrl), r, newEngine(), newValidator(t), Options{})

		got, err := service.Search(ctx, "물", 10)
		require.NoError(t, err)
		assert.Equal(t, []dictionary.Record{water}, got)
	})

	t.Run("without store", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		service := NewService(mock_lookup.NewMockCache(ctrl), mock_lookup.NewMockGatherer(ctrl), nil, newEngine(), newValidator(t), Options{})

		_, err := service.GetDetails(ctx, "水")
		assert.ErrorIs(t, err, ErrNoStore)
		_, err = service.Search(ctx, "물", 10)
		assert.ErrorIs(t, err, ErrNoStore)
	})

	t.Run("invalidate cache", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		c := mock_lookup.NewMockCache(ctrl)
		c.EXPECT().Clear(gomock.Any(), "*").Return(0, cache.Degraded)
		service := NewService(c, mock_lookup.NewMockGatherer(ctrl), nil, newEngine(), newValidator(t), Options{})

		removed, outcome := service.InvalidateCache(ctx, "*")
		assert.Zero(t, removed)
		assert.Equal(t, cache.Degraded, outcome)
	})
}

type stubGatherer struct {
	calls    atomic.Int32
	release  chan struct{}
	partials []dictionary.PartialRecord
}

func (s *stubGatherer) Gather(ctx context.Context, key dictionary.LookupKey) []dictionary.PartialRecord {
	s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	out := make([]dictionary.PartialRecord, len(s.partials))
	copy(out, s.partials)
	return out
}

func cacheConfig(url string) config.CacheConfig {
	return config.CacheConfig{
		Enabled:          true,
		URL:              url,
		KeyPrefix:        "hanja:",
		TTL:              time.Hour,
		RetryAttempts:    2,
		RetryDelay:       time.Millisecond,
		DialTimeout:      100 * time.Millisecond,
		OperationTimeout: time.Second,
		MaxFailures:      3,
	}
}

func connectedCache(t *testing.T) *cache.Layer {
	t.Helper()
	mr := miniredis.RunT(t)
	layer := cache.NewLayer(cacheConfig("redis://" + mr.Addr()))
	t.Cleanup(func() { layer.Close() })
	require.NoError(t, layer.Connect(context.Background()))
	return layer
}

func TestService_ValidationGateKeepsCacheMiss(t *testing.T) {
	layer := connectedCache(t)
	gatherer := &stubGatherer{partials: []dictionary.PartialRecord{
		{Traditional: "水", KoreanPronunciation: "수", StrokeCount: 70, Source: "A"},
	}}
	service := NewService(layer, gatherer, nil, newEngine(), newValidator(t), Options{})
	ctx := context.Background()

	_, err := service.Lookup(ctx, "水")

	var vfe *ValidationFailedError
	require.ErrorAs(t, err, &vfe)
	require.Len(t, vfe.Violations, 1)
	assert.Equal(t, validate.KindStrokeCount, vfe.Violations[0].Kind)
	_, hit := layer.Get(ctx, "水")
	assert.False(t, hit)
}

func TestService_CachedAfterSuccess(t *testing.T) {
	layer := connectedCache(t)
	gatherer := &stubGatherer{partials: waterPartials}
	service := NewService(layer, gatherer, nil, newEngine(), newValidator(t), Options{})
	ctx := context.Background()

	first, err := service.Lookup(ctx, "水")
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := service.Lookup(ctx, "水")
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, water, second.Record)
	assert.Equal(t, int32(1), gatherer.calls.Load())
}

func TestService_UnreachableCacheIsTransparent(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	layer := cache.NewLayer(cacheConfig("redis://" + addr))
	defer layer.Close()
	assert.Error(t, layer.Connect(context.Background()))
	require.Equal(t, cache.StateDisabled, layer.State())

	service := NewService(layer, &stubGatherer{partials: waterPartials}, nil, newEngine(), newValidator(t), Options{})

	got, err := service.Lookup(context.Background(), "水")

	require.NoError(t, err)
	assert.Equal(t, water, got.Record)
	assert.False(t, got.CacheHit)
}

type timedAdapter struct {
	name   string
	delay  time.Duration
	record dictionary.PartialRecord
}

func (a timedAdapter) Name() string { return a.name }

func (a timedAdapter) Fetch(ctx context.Context, key dictionary.LookupKey) source.Result {
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
		return source.Failed(a.name, ctx.Err())
	}
	record := a.record
	record.Source = a.name
	return source.Found(record)
}

func TestService_OneAdapterTimesOut(t *testing.T) {
	orchestrator := gather.New([]source.Adapter{
		timedAdapter{name: "A", record: dictionary.PartialRecord{Traditional: "水", KoreanPronunciation: "수"}},
		timedAdapter{name: "B", delay: time.Hour, record: dictionary.PartialRecord{Traditional: "水", Meaning: "never"}},
		timedAdapter{name: "C", delay: 10 * time.Millisecond, record: dictionary.PartialRecord{Traditional: "水", Meaning: "물 수", StrokeCount: 4}},
	}, 200*time.Millisecond)
	service := NewService(connectedCache(t), orchestrator, nil, newEngine(), newValidator(t), Options{})

	start := time.Now()
	got, err := service.Lookup(context.Background(), "水")

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, dictionary.Record{
		Traditional:         "水",
		KoreanPronunciation: "수",
		Meaning:             "물 수",
		StrokeCount:         4,
		Sources:             []string{"A", "C"},
	}, got.Record)
}

func TestService_ConcurrentLookupsShareOneRun(t *testing.T) {
	gatherer := &stubGatherer{partials: waterPartials, release: make(chan struct{})}
	ctrl := gomock.NewController(t)
	c := mock_lookup.NewMockCache(ctrl)
	c.EXPECT().Get(gomock.Any(), gomock.Any()).Return(dictionary.Record{}, false).AnyTimes()
	c.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any()).Return(cache.OK).AnyTimes()
	service := NewService(c, gatherer, nil, newEngine(), newValidator(t), Options{DedupeInflight: true})

	const callers = 5
	var wg sync.WaitGroup
	results := make([]Result, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = service.Lookup(context.Background(), "水")
		}()
	}

	require.Eventually(t, func() bool { return gatherer.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gatherer.release)
	wg.Wait()

	assert.Equal(t, int32(1), gatherer.calls.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, water, results[i].Record)
	}
	results[0].Record.Sources[0] = "mutated"
	assert.Equal(t, "A", results[1].Record.Sources[0])
}

func TestService_CanceledCallerStopsWaiting(t *testing.T) {
	gatherer := &stubGatherer{partials: waterPartials, release: make(chan struct{})}
	ctrl := gomock.NewController(t)
	c := mock_lookup.NewMockCache(ctrl)
	c.EXPECT().Get(gomock.Any(), gomock.Any()).Return(dictionary.Record{}, false)
	stored := make(chan dictionary.Record, 1)
	c.EXPECT().Set(gomock.Any(), dictionary.LookupKey("水"), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ dictionary.LookupKey, record dictionary.Record) cache.Outcome {
			stored <- record
			return cache.OK
		})
	service := NewService(c, gatherer, nil, newEngine(), newValidator(t), Options{DedupeInflight: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := service.Lookup(ctx, "水")
		done <- err
	}()
	require.Eventually(t, func() bool { return gatherer.calls.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled lookup kept waiting for the shared run")
	}

	// The run itself is not canceled and still caches its record.
	close(gatherer.release)
	select {
	case record := <-stored:
		assert.Equal(t, water, record)
	case <-time.After(time.Second):
		t.Fatal("shared run did not finish after the caller left")
	}
}
