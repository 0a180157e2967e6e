package proxy

import (
	"context"
	"errors"
	"net/http"

	"namegofer/internal/apiclient"
	"namegofer/internal/callgroup"
	"namegofer/internal/recordnames"
)

// Error codes used in answers that did not come from the builder API
const (
	CodeRequestValidation   = "ERROR_REQUEST_BODY_VALIDATION"
	CodeUpstreamUnavailable = "ERROR_UPSTREAM_UNAVAILABLE"
	CodeServiceShuttingDown = "ERROR_SERVICE_SHUTTING_DOWN"
	CodeUpstreamTimeout     = "ERROR_UPSTREAM_TIMEOUT"
)

// errorBody mirrors the builder API error shape
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// ClassifyError maps a lookup error to an HTTP status and error code.
// Builder API answers are forwarded with their own status and code.
func ClassifyError(err error) (int, string) {
	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, recordnames.ErrNoRecordIDs),
		errors.Is(err, recordnames.ErrInvalidSource),
		errors.Is(err, recordnames.ErrTooManyRecordIDs):
		return http.StatusBadRequest, CodeRequestValidation
	case errors.As(err, &apiErr):
		if apiErr.Code == "" {
			return http.StatusBadGateway, CodeUpstreamUnavailable
		}
		return apiErr.StatusCode, apiErr.Code
	case errors.Is(err, apiclient.ErrCircuitOpen):
		return http.StatusServiceUnavailable, CodeUpstreamUnavailable
	case errors.Is(err, callgroup.ErrClosed):
		return http.StatusServiceUnavailable, CodeServiceShuttingDown
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeUpstreamTimeout
	default:
		return http.StatusBadGateway, CodeUpstreamUnavailable
	}
}
