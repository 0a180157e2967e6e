package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Request is a JSON-RPC request
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      ID              `json:"id"`
}

// Validate checks if the request is valid
func (r *Request) Validate() error {
	if r.JSONRPC != Version {
		return fmt.Errorf("invalid jsonrpc version: %s", r.JSONRPC)
	}
	if r.Method == "" {
		return fmt.Errorf("method is required")
	}
	return nil
}

// IsNotification returns true if the request has no id
func (r *Request) IsNotification() bool {
	return r.ID.IsNull()
}

// UnmarshalParams decodes positional params into targets, one target per
// array element. Missing trailing elements are an error.
func (r *Request) UnmarshalParams(targets ...any) error {
	var params []json.RawMessage
	if err := json.Unmarshal(r.Params, &params); err != nil {
		return fmt.Errorf("params must be an array: %w", err)
	}
	if len(params) != len(targets) {
		return fmt.Errorf("expected %d params, got %d", len(targets), len(params))
	}
	for i, target := range targets {
		if err := json.Unmarshal(params[i], target); err != nil {
			return fmt.Errorf("param %d: %w", i, err)
		}
	}
	return nil
}

// ParseBatchRequest parses a single request or a batch of requests.
// The bool result reports whether data was a batch.
func ParseBatchRequest(data []byte) ([]*Request, bool, error) {
	data = bytes.TrimLeft(data, " \t\r\n")
	if len(data) == 0 {
		return nil, false, ErrInvalidRequest
	}

	if data[0] == '[' {
		var requests []*Request
		if err := json.Unmarshal(data, &requests); err != nil {
			return nil, true, fmt.Errorf("failed to parse batch request: %w", err)
		}
		if len(requests) == 0 {
			return nil, true, ErrInvalidRequest
		}
		return requests, true, nil
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, false, fmt.Errorf("failed to parse request: %w", err)
	}
	return []*Request{&req}, false, nil
}

// NewRequest creates a new JSON-RPC request
func NewRequest(method string, params any, id ID) (*Request, error) {
	req := &Request{
		JSONRPC: Version,
		Method:  method,
		ID:      id,
	}

	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		req.Params = raw
	}

	return req, nil
}
