package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned by the record names endpoint
const (
	CodeDataSourceDoesNotExist         = "ERROR_DATA_SOURCE_DOES_NOT_EXIST"
	CodeDataSourceImproperlyConfigured = "ERROR_DATA_SOURCE_IMPROPERLY_CONFIGURED"
	CodePermissionDenied               = "PERMISSION_DENIED"
)

// APIError is a non-200 answer of the builder API
type APIError struct {
	StatusCode int
	Code       string
	Detail     string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Detail)
	}
	if e.Detail == "" {
		return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("HTTP error %d: %s: %s", e.StatusCode, e.Code, e.Detail)
}

// IsServerError returns true for 5xx answers
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// errorBody is the shape of the API's error answers
type errorBody struct {
	Error  string          `json:"error"`
	Detail json.RawMessage `json:"detail"`
}

// parseAPIError builds an APIError from a response body, falling back to
// the raw body when it is not the usual error object
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error == "" {
		apiErr.Detail = string(body)
		return apiErr
	}

	apiErr.Code = eb.Error
	if len(eb.Detail) > 0 {
		var detail string
		if err := json.Unmarshal(eb.Detail, &detail); err == nil {
			apiErr.Detail = detail
		} else {
			apiErr.Detail = string(eb.Detail)
		}
	}
	return apiErr
}

// IsNotFound returns true if err says the data source does not exist
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == CodeDataSourceDoesNotExist || apiErr.StatusCode == http.StatusNotFound
}

// IsImproperlyConfigured returns true if err says the data source can't
// provide record names
func IsImproperlyConfigured(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeDataSourceImproperlyConfigured
}

// IsPermissionDenied returns true if the API refused the lookup for the
// configured token
func IsPermissionDenied(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == CodePermissionDenied ||
		apiErr.StatusCode == http.StatusUnauthorized ||
		apiErr.StatusCode == http.StatusForbidden
}
