package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"

	"github.com/hanjadb/hanjadb/internal/dictionary"
)

// KeyPlaceholder is replaced with the escaped lookup key in endpoint templates.
const KeyPlaceholder = "{key}"

// Extractor turns a parsed page into the fields it carries. It returns false
// when the page has no entry for the key. Missing fields are left empty.
type Extractor func(doc *html.Node) (dictionary.PartialRecord, bool)

// Options are shared by every HTML scraper.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	Pacer     *Pacer
}

// Scraper is an Adapter for dictionaries that serve an HTML search page.
type Scraper struct {
	name     string
	endpoint string
	client   *resty.Client
	pacer    *Pacer
	extract  Extractor
	now      func() time.Time
}

func NewScraper(name, endpoint string, extract Extractor, opts Options) *Scraper {
	client := resty.New()
	client.SetHeader("User-Agent", opts.UserAgent)
	client.SetHeader("Accept", "text/html")
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	return &Scraper{
		name:     name,
		endpoint: endpoint,
		client:   client,
		pacer:    opts.Pacer,
		extract:  extract,
		now:      time.Now,
	}
}

func (s *Scraper) Name() string {
	return s.name
}

func (s *Scraper) Fetch(ctx context.Context, key dictionary.LookupKey) Result {
	if err := s.pacer.Wait(ctx); err != nil {
		return Failed(s.name, &TransportError{Source: s.name, Err: err})
	}

	res, err := s.client.R().
		SetContext(ctx).
		Get(expandEndpoint(s.endpoint, key))
	if err != nil {
		return Failed(s.name, &TransportError{Source: s.name, Err: fmt.Errorf("client.R.Get > %w", err)})
	}
	if res.StatusCode() == http.StatusNotFound {
		return NotFound(s.name)
	}
	if !res.IsSuccess() {
		return Failed(s.name, &TransportError{
			Source:     s.name,
			StatusCode: res.StatusCode(),
			Err:        fmt.Errorf("body: %.200s", res.String()),
		})
	}
	return parsePage(s.name, strings.NewReader(res.String()), s.extract, s.now())
}

func parsePage(name string, body io.Reader, extract Extractor, fetchedAt time.Time) Result {
	doc, err := html.Parse(body)
	if err != nil {
		return Failed(name, &TransportError{Source: name, Err: fmt.Errorf("html.Parse > %w", err)})
	}
	record, ok := extract(doc)
	if !ok || !record.HasKey() {
		slog.Debug("no entry on page", "source", name)
		return NotFound(name)
	}
	record.Source = name
	record.FetchedAt = fetchedAt
	return Found(record)
}

func expandEndpoint(template string, key dictionary.LookupKey) string {
	return strings.ReplaceAll(template, KeyPlaceholder, url.QueryEscape(string(key)))
}
