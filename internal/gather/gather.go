// Package gather runs every source adapter for one key in parallel under a
// shared deadline.
package gather

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hanjadb/hanjadb/internal/dictionary"
	"github.com/hanjadb/hanjadb/internal/source"
)

type Orchestrator struct {
	adapters []source.Adapter
	timeout  time.Duration
}

// New creates an orchestrator. The adapters' order is their priority and is
// kept in the output regardless of which adapter answers first.
func New(adapters []source.Adapter, timeout time.Duration) *Orchestrator {
	return &Orchestrator{adapters: adapters, timeout: timeout}
}

type indexed struct {
	index  int
	result source.Result
}

// Collect fetches key from every adapter and returns one result per adapter
// in registration order. Adapters still running at the deadline are reported
// as transport errors; their late results are discarded.
func (o *Orchestrator) Collect(ctx context.Context, key dictionary.LookupKey) []source.Result {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	ch := make(chan indexed, len(o.adapters))
	for i, adapter := range o.adapters {
		go func() {
			ch <- indexed{index: i, result: fetch(ctx, adapter, key)}
		}()
	}

	results := make([]source.Result, len(o.adapters))
	done := make([]bool, len(o.adapters))
	for received := 0; received < len(o.adapters); received++ {
		select {
		case r := <-ch:
			results[r.index] = r.result
			done[r.index] = true
		case <-ctx.Done():
			for i, adapter := range o.adapters {
				if !done[i] {
					results[i] = source.Failed(adapter.Name(), &source.TransportError{
						Source: adapter.Name(),
						Err:    fmt.Errorf("no answer before deadline: %w", ctx.Err()),
					})
				}
			}
			return results
		}
	}
	return results
}

// Gather returns the records of the adapters that recognized key, in
// registration order. An empty result means no source knows the key.
func (o *Orchestrator) Gather(ctx context.Context, key dictionary.LookupKey) []dictionary.PartialRecord {
	var records []dictionary.PartialRecord
	for _, r := range o.Collect(ctx, key) {
		switch {
		case r.Status == source.StatusFound && r.Record.HasKey():
			records = append(records, r.Record)
		case r.Status == source.StatusTransportError:
			slog.Warn("source unavailable", "key", key, "source", r.Source, "error", r.Err)
		default:
			slog.Debug("source has no entry", "key", key, "source", r.Source)
		}
	}
	return records
}

func fetch(ctx context.Context, adapter source.Adapter, key dictionary.LookupKey) (result source.Result) {
	defer func() {
		if p := recover(); p != nil {
			result = source.Failed(adapter.Name(), &source.TransportError{
				Source: adapter.Name(),
				Err:    fmt.Errorf("adapter panicked: %v", p),
			})
		}
	}()
	result = adapter.Fetch(ctx, key)
	if result.Source == "" {
		result.Source = adapter.Name()
	}
	if result.Status == source.StatusFound {
		result.Record.Source = adapter.Name()
	}
	return result
}
