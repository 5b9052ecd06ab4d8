package source

import (
	"fmt"

	"github.com/hanjadb/hanjadb/internal/config"
)

// NewAdapters builds the configured adapters in priority order. Each adapter
// gets its own pacer so a slow origin does not hold back the others.
func NewAdapters(cfg config.SourcesConfig) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(cfg.Priority))
	for _, name := range cfg.Priority {
		opts := Options{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.RequestTimeout,
			Pacer:     NewPacer(cfg.RatePerSecond, cfg.Burst, cfg.MinDelay, cfg.MaxDelay),
		}
		switch name {
		case NameNaver:
			adapters = append(adapters, NewNaver(cfg.Naver.URL, opts))
		case NameDaum:
			adapters = append(adapters, NewDaum(cfg.Daum.URL, opts))
		case NameNational:
			adapters = append(adapters, NewNational(cfg.National.URL, opts))
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
	}
	return adapters, nil
}

// Names returns the adapter names in the order given.
func Names(adapters []Adapter) []string {
	names := make([]string, 0, len(adapters))
	for _, a := range adapters {
		names = append(names, a.Name())
	}
	return names
}
