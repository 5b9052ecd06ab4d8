package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

// NewLoggingInterceptor logs every unary call with its request id. A caller
// supplied id is kept; otherwise a new one is generated and echoed back.
func NewLoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			requestID := req.Header().Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}

			start := time.Now()
			res, err := next(ctx, req)
			elapsed := time.Since(start)

			if err != nil {
				var connectErr *connect.Error
				if errors.As(err, &connectErr) {
					connectErr.Meta().Set(RequestIDHeader, requestID)
				}
				slog.Warn("request failed",
					"procedure", req.Spec().Procedure,
					"request_id", requestID,
					"code", connect.CodeOf(err).String(),
					"duration", elapsed,
					"error", err)
				return res, err
			}

			res.Header().Set(RequestIDHeader, requestID)
			slog.Info("request served",
				"procedure", req.Spec().Procedure,
				"request_id", requestID,
				"duration", elapsed)
			return res, nil
		}
	}
}
