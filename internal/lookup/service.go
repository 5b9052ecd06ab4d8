// Package lookup answers key lookups by running the aggregation pipeline:
// cache, store, sources, normalization, merge and validation.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/hanjadb/hanjadb/internal/cache"
	"github.com/hanjadb/hanjadb/internal/dictionary"
	"github.com/hanjadb/hanjadb/internal/merge"
	"github.com/hanjadb/hanjadb/internal/normalize"
	"github.com/hanjadb/hanjadb/internal/validate"
)

var (
	// ErrNotFound means no source and no stored record knows the key.
	ErrNotFound = errors.New("hanja not found")
	ErrEmptyKey = errors.New("lookup key is empty")
	// ErrNoStore is returned by store-only operations when no repository is configured.
	ErrNoStore = errors.New("no store configured")
)

// ValidationFailedError is returned when the merged record breaks a rule.
// Such a record is never cached or stored.
type ValidationFailedError struct {
	Key        dictionary.LookupKey
	Record     dictionary.Record
	Violations []validate.Violation
}

func (e *ValidationFailedError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.String())
	}
	return fmt.Sprintf("validation failed for %q: %s", e.Key, strings.Join(msgs, "; "))
}

//go:generate mockgen -source=service.go -destination=../mocks/lookup/mock_service.go -package=mock_lookup

type Cache interface {
	Get(ctx context.Context, key dictionary.LookupKey) (dictionary.Record, bool)
	Set(ctx context.Context, key dictionary.LookupKey, record dictionary.Record) cache.Outcome
	Clear(ctx context.Context, pattern string) (int, cache.Outcome)
}

type Gatherer interface {
	Gather(ctx context.Context, key dictionary.LookupKey) []dictionary.PartialRecord
}

type Options struct {
	PersistMode      dictionary.UpsertMode
	StoreReadThrough bool
	DedupeInflight   bool
}

// Result is a successful lookup. StoreErr is set when the record could not be
// persisted; the record is still valid and was returned to the caller.
type Result struct {
	Record    dictionary.Record
	CacheHit  bool
	FromStore bool
	Conflicts []dictionary.Conflict
	StoreErr  error
}

type lookupOptions struct {
	refresh bool
}

type LookupOption func(*lookupOptions)

// WithRefresh skips the cache and store reads and always runs the sources.
func WithRefresh() LookupOption {
	return func(o *lookupOptions) {
		o.refresh = true
	}
}

type Service struct {
	cache     Cache
	gatherer  Gatherer
	repo      dictionary.Repository
	engine    *merge.Engine
	validator *validate.Validator
	opts      Options
	group     singleflight.Group
}

// NewService wires the pipeline. repo may be nil, in which case records are
// only cached.
func NewService(
	cache Cache,
	gatherer Gatherer,
	repo dictionary.Repository,
	engine *merge.Engine,
	validator *validate.Validator,
	opts Options,
) *Service {
	if opts.PersistMode == "" {
		opts.PersistMode = dictionary.UpsertOverwrite
	}
	return &Service{
		cache:     cache,
		gatherer:  gatherer,
		repo:      repo,
		engine:    engine,
		validator: validator,
		opts:      opts,
	}
}

// Lookup returns the record for key. The only errors are ErrEmptyKey,
// ErrNotFound and *ValidationFailedError; cache and store problems are
// logged and never fail the call.
func (s *Service) Lookup(ctx context.Context, key dictionary.LookupKey, options ...LookupOption) (Result, error) {
	key = dictionary.LookupKey(strings.TrimSpace(string(key)))
	if key == "" {
		return Result{}, ErrEmptyKey
	}
	var o lookupOptions
	for _, opt := range options {
		opt(&o)
	}

	if !o.refresh {
		if record, ok := s.cache.Get(ctx, key); ok {
			slog.Debug("cache hit", "key", key)
			return Result{Record: record, CacheHit: true}, nil
		}
		if record, ok := s.readStore(ctx, key); ok {
			s.cache.Set(ctx, key, record)
			return Result{Record: record, FromStore: true}, nil
		}
	}

	if !s.opts.DedupeInflight {
		return s.run(ctx, key)
	}

	flightKey := string(key)
	if o.refresh {
		flightKey = "refresh:" + flightKey
	}
	// The shared run outlives a single caller's cancellation; the gather
	// deadline still bounds it. A canceled caller stops waiting for it.
	ch := s.group.DoChan(flightKey, func() (any, error) {
		return s.run(context.WithoutCancel(ctx), key)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		result, _ := res.Val.(Result)
		err := res.Err
		if res.Shared {
			result.Record = result.Record.Clone()
			if vfe, ok := err.(*ValidationFailedError); ok {
				copied := *vfe
				err = &copied
			}
		}
		return result, err
	}
}

func (s *Service) readStore(ctx context.Context, key dictionary.LookupKey) (dictionary.Record, bool) {
	if s.repo == nil || !s.opts.StoreReadThrough {
		return dictionary.Record{}, false
	}
	record, err := s.repo.FindByKey(ctx, key)
	if errors.Is(err, dictionary.ErrNotFound) {
		return dictionary.Record{}, false
	}
	if err != nil {
		slog.Warn("store read failed, falling back to sources", "key", key, "error", err)
		return dictionary.Record{}, false
	}
	return record, true
}

func (s *Service) run(ctx context.Context, key dictionary.LookupKey) (Result, error) {
	gathered := s.gatherer.Gather(ctx, key)
	partials := make([]dictionary.PartialRecord, 0, len(gathered))
	for _, p := range gathered {
		partials = append(partials, normalize.Record(p))
	}

	record, conflicts := s.engine.Merge(partials)
	for _, c := range conflicts {
		slog.Debug("sources disagree", "key", key, "conflict", c.String())
	}
	if record.IsZero() {
		slog.Info("no source matched", "key", key, "answered", len(partials))
		return Result{}, ErrNotFound
	}

	if violations := s.validator.Validate(record); len(violations) > 0 {
		slog.Warn("merged record rejected", "key", key, "violations", len(violations))
		return Result{}, &ValidationFailedError{Key: key, Record: record, Violations: violations}
	}

	result := Result{Record: record, Conflicts: conflicts}
	if outcome := s.cache.Set(ctx, key, record); outcome != cache.OK {
		slog.Debug("record not cached", "key", key, "outcome", outcome)
	}
	if s.repo != nil {
		if err := s.repo.Upsert(ctx, record, s.opts.PersistMode); err != nil {
			slog.Error("failed to store record", "key", key, "error", err)
			result.StoreErr = err
		}
	}
	return result, nil
}

// GetDetails returns the stored record for key without contacting sources.
func (s *Service) GetDetails(ctx context.Context, key dictionary.LookupKey) (dictionary.Record, error) {
	if s.repo == nil {
		return dictionary.Record{}, ErrNoStore
	}
	record, err := s.repo.FindByKey(ctx, key)
	if errors.Is(err, dictionary.ErrNotFound) {
		return dictionary.Record{}, ErrNotFound
	}
	if err != nil {
		return dictionary.Record{}, fmt.Errorf("repo.FindByKey > %w", err)
	}
	return record, nil
}

// Search returns stored records whose text contains term.
func (s *Service) Search(ctx context.Context, term string, limit int) ([]dictionary.Record, error) {
	if s.repo == nil {
		return nil, ErrNoStore
	}
	records, err := s.repo.Search(ctx, term, limit)
	if err != nil {
		return nil, fmt.Errorf("repo.Search > %w", err)
	}
	return records, nil
}

// InvalidateCache removes cached records matching pattern. It always
// succeeds; a degraded outcome only means the cache is unavailable.
func (s *Service) InvalidateCache(ctx context.Context, pattern string) (int, cache.Outcome) {
	removed, outcome := s.cache.Clear(ctx, pattern)
	slog.Info("cache invalidated", "pattern", pattern, "removed", removed, "outcome", outcome)
	return removed, outcome
}
