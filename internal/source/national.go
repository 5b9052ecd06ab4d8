package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"resty.dev/v3"

	"github.com/hanjadb/hanjadb/internal/dictionary"
)

const NameNational = "national"

// National queries the Standard Korean Language Dictionary. Its search page
// only lists the headword, the reading and a short gloss; radical and stroke
// count are left for other sources to fill.
type National struct {
	endpoint string
	client   *resty.Client
	pacer    *Pacer
	now      func() time.Time
}

func NewNational(endpoint string, opts Options) *National {
	client := resty.New()
	client.SetHeader("User-Agent", opts.UserAgent)
	client.SetHeader("Accept", "text/html")
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	return &National{
		endpoint: endpoint,
		client:   client,
		pacer:    opts.Pacer,
		now:      time.Now,
	}
}

func (n *National) Name() string {
	return NameNational
}

func (n *National) Close() error {
	return n.client.Close()
}

func (n *National) Fetch(ctx context.Context, key dictionary.LookupKey) Result {
	if err := n.pacer.Wait(ctx); err != nil {
		return Failed(NameNational, &TransportError{Source: NameNational, Err: err})
	}

	response, err := n.client.R().
		SetContext(ctx).
		Get(expandEndpoint(n.endpoint, key))
	if err != nil {
		return Failed(NameNational, &TransportError{Source: NameNational, Err: fmt.Errorf("httpClient.Get > %w", err)})
	}
	if response.StatusCode() == http.StatusNotFound {
		return NotFound(NameNational)
	}
	if response.IsError() {
		return Failed(NameNational, &TransportError{
			Source:     NameNational,
			StatusCode: response.StatusCode(),
			Err:        fmt.Errorf("body: %.200s", response.String()),
		})
	}
	return parsePage(NameNational, strings.NewReader(response.String()), ExtractNational, n.now())
}

// ExtractNational reads the first hit of a search result list.
func ExtractNational(doc *html.Node) (dictionary.PartialRecord, bool) {
	list := queryFirst(doc, "dl.search_list")
	if list == nil {
		return dictionary.PartialRecord{}, false
	}
	headword := queryFirst(list, "a.on")
	if headword == nil {
		return dictionary.PartialRecord{}, false
	}

	reading := queryFirst(list, "span.search_sub")
	return dictionary.PartialRecord{
		Traditional:         text(headword),
		KoreanPronunciation: text(reading),
		Meaning:             textAfter(reading),
	}, true
}
