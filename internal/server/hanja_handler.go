// Package server provides Connect RPC handlers for the hanja service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"google.golang.org/genproto/googleapis/rpc/errdetails"

	"github.com/hanjadb/hanjadb/internal/cache"
	"github.com/hanjadb/hanjadb/internal/dictionary"
	"github.com/hanjadb/hanjadb/internal/lookup"
)

const HanjaServiceName = "hanja.v1.HanjaService"

const (
	LookupProcedure          = "/" + HanjaServiceName + "/Lookup"
	GetDetailsProcedure      = "/" + HanjaServiceName + "/GetDetails"
	SearchProcedure          = "/" + HanjaServiceName + "/Search"
	InvalidateCacheProcedure = "/" + HanjaServiceName + "/InvalidateCache"
)

type LookupRequest struct {
	Key     string `json:"key" validate:"required,max=50"`
	Refresh bool   `json:"refresh,omitempty"`
}

type LookupResponse struct {
	Record    dictionary.Record `json:"record"`
	CacheHit  bool              `json:"cache_hit"`
	FromStore bool              `json:"from_store"`
	Conflicts []string          `json:"conflicts,omitempty"`
	// StoreError is set when the record was served but could not be persisted.
	StoreError string `json:"store_error,omitempty"`
}

type GetDetailsRequest struct {
	Key string `json:"key" validate:"required,max=50"`
}

type GetDetailsResponse struct {
	Record dictionary.Record `json:"record"`
}

type SearchRequest struct {
	Query string `json:"query" validate:"required,max=50"`
	Limit int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
}

type SearchResponse struct {
	Records []dictionary.Record `json:"records"`
}

type InvalidateCacheRequest struct {
	Pattern string `json:"pattern,omitempty" validate:"max=100"`
}

type InvalidateCacheResponse struct {
	Success bool   `json:"success"`
	Removed int    `json:"removed"`
	Message string `json:"message"`
}

// HanjaService is the lookup pipeline as seen by the handlers.
type HanjaService interface {
	Lookup(ctx context.Context, key dictionary.LookupKey, options ...lookup.LookupOption) (lookup.Result, error)
	GetDetails(ctx context.Context, key dictionary.LookupKey) (dictionary.Record, error)
	Search(ctx context.Context, term string, limit int) ([]dictionary.Record, error)
	InvalidateCache(ctx context.Context, pattern string) (int, cache.Outcome)
}

// HanjaHandler implements the hanja.v1.HanjaService procedures.
type HanjaHandler struct {
	service  HanjaService
	validate *validator.Validate
	trans    ut.Translator
}

// NewHanjaHandler creates a new HanjaHandler.
func NewHanjaHandler(service HanjaService) (*HanjaHandler, error) {
	validate, trans, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	return &HanjaHandler{
		service:  service,
		validate: validate,
		trans:    trans,
	}, nil
}

// NewHanjaServiceHandler builds an HTTP handler serving every procedure of
// the service. It returns the path to mount it on.
func NewHanjaServiceHandler(h *HanjaHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(LookupProcedure, connect.NewUnaryHandler(LookupProcedure, h.Lookup, opts...))
	mux.Handle(GetDetailsProcedure, connect.NewUnaryHandler(GetDetailsProcedure, h.GetDetails, opts...))
	mux.Handle(SearchProcedure, connect.NewUnaryHandler(SearchProcedure, h.Search, opts...))
	mux.Handle(InvalidateCacheProcedure, connect.NewUnaryHandler(InvalidateCacheProcedure, h.InvalidateCache, opts...))
	return "/" + HanjaServiceName + "/", mux
}

// Lookup returns the merged record for a key, running the sources on a miss.
func (h *HanjaHandler) Lookup(
	ctx context.Context,
	req *connect.Request[LookupRequest],
) (*connect.Response[LookupResponse], error) {
	if err := h.validateRequest(req.Msg); err != nil {
		return nil, err
	}

	var options []lookup.LookupOption
	if req.Msg.Refresh {
		options = append(options, lookup.WithRefresh())
	}
	result, err := h.service.Lookup(ctx, dictionary.LookupKey(req.Msg.Key), options...)
	if err != nil {
		return nil, toConnectError(err)
	}

	res := &LookupResponse{
		Record:    result.Record,
		CacheHit:  result.CacheHit,
		FromStore: result.FromStore,
	}
	for _, c := range result.Conflicts {
		res.Conflicts = append(res.Conflicts, c.String())
	}
	if result.StoreErr != nil {
		res.StoreError = result.StoreErr.Error()
	}
	return connect.NewResponse(res), nil
}

// GetDetails returns the stored record for a key.
func (h *HanjaHandler) GetDetails(
	ctx context.Context,
	req *connect.Request[GetDetailsRequest],
) (*connect.Response[GetDetailsResponse], error) {
	if err := h.validateRequest(req.Msg); err != nil {
		return nil, err
	}

	record, err := h.service.GetDetails(ctx, dictionary.LookupKey(req.Msg.Key))
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetDetailsResponse{Record: record}), nil
}

// Search returns stored records containing the query.
func (h *HanjaHandler) Search(
	ctx context.Context,
	req *connect.Request[SearchRequest],
) (*connect.Response[SearchResponse], error) {
	if err := h.validateRequest(req.Msg); err != nil {
		return nil, err
	}

	records, err := h.service.Search(ctx, req.Msg.Query, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}
	if records == nil {
		records = []dictionary.Record{}
	}
	return connect.NewResponse(&SearchResponse{Records: records}), nil
}

// InvalidateCache drops cached records. It never fails because the cache is
// optional; the message tells whether the cache was reachable.
func (h *HanjaHandler) InvalidateCache(
	ctx context.Context,
	req *connect.Request[InvalidateCacheRequest],
) (*connect.Response[InvalidateCacheResponse], error) {
	if err := h.validateRequest(req.Msg); err != nil {
		return nil, err
	}

	removed, outcome := h.service.InvalidateCache(ctx, req.Msg.Pattern)
	message := fmt.Sprintf("removed %d cached records", removed)
	if outcome == cache.Degraded {
		message = "cache unavailable, nothing to invalidate"
	}
	return connect.NewResponse(&InvalidateCacheResponse{
		Success: true,
		Removed: removed,
		Message: message,
	}), nil
}

func toConnectError(err error) *connect.Error {
	var validationErr *lookup.ValidationFailedError
	switch {
	case errors.Is(err, lookup.ErrEmptyKey):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, lookup.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, lookup.ErrNoStore):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.As(err, &validationErr):
		connectErr := connect.NewError(connect.CodeFailedPrecondition, err)
		var fieldViolations []*errdetails.BadRequest_FieldViolation
		for _, v := range validationErr.Violations {
			fieldViolations = append(fieldViolations, &errdetails.BadRequest_FieldViolation{
				Field:       v.Field,
				Description: v.String(),
			})
		}
		if detail, detailErr := connect.NewErrorDetail(&errdetails.BadRequest{
			FieldViolations: fieldViolations,
		}); detailErr == nil {
			connectErr.AddDetail(detail)
		}
		return connectErr
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
