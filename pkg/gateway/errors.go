package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/marmos91/dittogrid/pkg/connection"
	"github.com/marmos91/dittogrid/pkg/gridstream"
)

// statusFor maps grid errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, chunkstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, chunkstore.ErrInvalidRange):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, errBadRequest),
		errors.Is(err, chunkstore.ErrInvalidMode),
		errors.Is(err, chunkstore.ErrInvalidName),
		errors.Is(err, gridstream.ErrWrongDirection),
		errors.Is(err, gridstream.ErrInvalidEncoding),
		errors.Is(err, gridstream.ErrInvalidPayload):
		return http.StatusBadRequest
	case errors.Is(err, connection.ErrConnection):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
