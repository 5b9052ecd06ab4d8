// Package cache keeps merged records in Redis in front of the lookup
// pipeline. The cache is best-effort: when Redis cannot be reached the layer
// disables itself and every call becomes a no-op.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/redis/go-redis/v9"

	"github.com/hanjadb/hanjadb/internal/config"
	"github.com/hanjadb/hanjadb/internal/dictionary"
)

// State is the state of the connection to the backing store.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Outcome reports whether a write reached the backing store.
type Outcome int

const (
	OK Outcome = iota
	Degraded
)

func (o Outcome) String() string {
	if o == OK {
		return "ok"
	}
	return "degraded"
}

const (
	entryVersion = 1
	scanCount    = 100
)

// entry is the stored document: the record's fields plus version and expiry.
type entry struct {
	dictionary.Record
	Version   int       `json:"_version"`
	ExpiresAt time.Time `json:"_expires_at"`
}

type Layer struct {
	client           *redis.Client
	keyPrefix        string
	ttl              time.Duration
	retryAttempts    uint
	retryDelay       time.Duration
	operationTimeout time.Duration
	maxFailures      int32

	state    atomic.Int32
	failures atomic.Int32
	now      func() time.Time
}

// NewLayer creates a disconnected layer. A disabled or unparsable
// configuration yields a layer that starts in StateDisabled.
func NewLayer(cfg config.CacheConfig) *Layer {
	l := &Layer{
		keyPrefix:        cfg.KeyPrefix,
		ttl:              cfg.TTL,
		retryAttempts:    max(cfg.RetryAttempts, 1),
		retryDelay:       cfg.RetryDelay,
		operationTimeout: cfg.OperationTimeout,
		maxFailures:      int32(max(cfg.MaxFailures, 1)),
		now:              time.Now,
	}
	if !cfg.Enabled {
		l.state.Store(int32(StateDisabled))
		return l
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		slog.Warn("invalid cache url, caching disabled", "error", err)
		l.state.Store(int32(StateDisabled))
		return l
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	l.client = redis.NewClient(opts)
	return l
}

func (l *Layer) State() State {
	return State(l.state.Load())
}

// Connect pings Redis up to the configured number of attempts with a fixed
// delay in between. If every attempt fails the layer is disabled for the
// rest of the process; the error is returned for logging only.
func (l *Layer) Connect(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return nil
	}

	err := retry.Do(
		func() error {
			return l.client.Ping(ctx).Err()
		},
		retry.Context(ctx),
		retry.Attempts(l.retryAttempts),
		retry.Delay(l.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("cache connection attempt failed", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		l.disable("connect failed", err)
		return fmt.Errorf("connect to redis after %d attempts: %w", l.retryAttempts, err)
	}

	l.state.Store(int32(StateConnected))
	slog.Info("cache connected", "addr", l.client.Options().Addr)
	return nil
}

// Get returns the cached record for key. Any error, including a document
// that cannot be decoded, is reported as a miss.
func (l *Layer) Get(ctx context.Context, key dictionary.LookupKey) (dictionary.Record, bool) {
	if l.State() != StateConnected {
		return dictionary.Record{}, false
	}
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	data, err := l.client.Get(ctx, l.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		l.succeeded()
		return dictionary.Record{}, false
	}
	if err != nil {
		l.failed("get", err)
		return dictionary.Record{}, false
	}
	l.succeeded()

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		slog.Warn("cache entry could not be decoded", "key", key, "error", err)
		return dictionary.Record{}, false
	}
	if e.Version != entryVersion || e.IsZero() {
		return dictionary.Record{}, false
	}
	if !e.ExpiresAt.IsZero() && !l.now().Before(e.ExpiresAt) {
		return dictionary.Record{}, false
	}
	return e.Record, true
}

// Set stores record under key with the configured TTL.
func (l *Layer) Set(ctx context.Context, key dictionary.LookupKey, record dictionary.Record) Outcome {
	if l.State() != StateConnected {
		return Degraded
	}

	e := entry{Record: record, Version: entryVersion}
	if l.ttl > 0 {
		e.ExpiresAt = l.now().Add(l.ttl).UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		slog.Warn("cache entry could not be encoded", "key", key, "error", err)
		return Degraded
	}

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()
	if err := l.client.Set(ctx, l.redisKey(key), data, l.ttl).Err(); err != nil {
		l.failed("set", err)
		return Degraded
	}
	l.succeeded()
	return OK
}

// Clear removes the keys matching pattern, a Redis glob relative to the key
// prefix. An empty pattern or "*" removes every entry. It returns the number
// of removed keys; no match is not an error.
func (l *Layer) Clear(ctx context.Context, pattern string) (int, Outcome) {
	if l.State() != StateConnected {
		return 0, Degraded
	}
	if pattern == "" {
		pattern = "*"
	}

	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := l.client.Scan(ctx, cursor, l.keyPrefix+pattern, scanCount).Result()
		if err != nil {
			l.failed("scan", err)
			return removed, Degraded
		}
		if len(keys) > 0 {
			n, err := l.client.Del(ctx, keys...).Result()
			if err != nil {
				l.failed("del", err)
				return removed, Degraded
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	l.succeeded()
	return removed, OK
}

func (l *Layer) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}

func (l *Layer) redisKey(key dictionary.LookupKey) string {
	return l.keyPrefix + string(key)
}

func (l *Layer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.operationTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.operationTimeout)
}

func (l *Layer) succeeded() {
	l.failures.Store(0)
}

// failed counts consecutive errors and disables the layer once the limit is
// reached. A canceled caller context is not the backend's fault.
func (l *Layer) failed(op string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	n := l.failures.Add(1)
	slog.Warn("cache operation failed", "op", op, "consecutive_failures", n, "error", err)
	if n >= l.maxFailures {
		l.disable("too many consecutive failures", err)
	}
}

func (l *Layer) disable(reason string, err error) {
	previous := State(l.state.Swap(int32(StateDisabled)))
	if previous == StateDisabled {
		return
	}
	slog.Warn("cache disabled", "reason", reason, "previous_state", previous, "error", err)
}
