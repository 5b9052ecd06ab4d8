// Package source fetches hanja entries from external dictionaries.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/hanjadb/hanjadb/internal/dictionary"
)

// ErrNotFound is the error carried by a NotFound result.
var ErrNotFound = errors.New("entry not found at source")

// Status tells a caller whether a source had no opinion or was broken.
type Status int

const (
	StatusFound Status = iota
	StatusNotFound
	StatusTransportError
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not_found"
	case StatusTransportError:
		return "transport_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is what one adapter reports for one key. Record is only set when
// Status is StatusFound, Err only when it is not.
type Result struct {
	Source string
	Status Status
	Record dictionary.PartialRecord
	Err    error
}

func Found(record dictionary.PartialRecord) Result {
	return Result{Source: record.Source, Status: StatusFound, Record: record}
}

func NotFound(source string) Result {
	return Result{Source: source, Status: StatusNotFound, Err: ErrNotFound}
}

func Failed(source string, err error) Result {
	return Result{Source: source, Status: StatusTransportError, Err: err}
}

// TransportError describes a failed request to a source.
// StatusCode is zero when no response was received.
type TransportError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Adapter wraps one external dictionary. Fetch never panics on missing
// fields and never returns a Found result without a traditional form.
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, key dictionary.LookupKey) Result
}
