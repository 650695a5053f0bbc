package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEnvelope indicates a response body that does not match the
// backend's standard envelope shape.
var ErrMalformedEnvelope = errors.New("api_client.malformed_envelope")

// Envelope is the standard wrapper the backend emits around every payload.
type Envelope[T any] struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
	Data       T      `json:"data"`
}

// DecodeEnvelope parses the standard envelope into a typed payload. Shape
// mismatches are rejected explicitly rather than silently producing zero
// values; per-endpoint field validation stays with the caller.
func DecodeEnvelope[T any](response *Response) (T, error) {
	var payload T
	if response == nil || len(response.Body) == 0 {
		return payload, fmt.Errorf("api_client.decode.empty: %w", ErrMalformedEnvelope)
	}
	var envelope Envelope[T]
	if decodeErr := json.Unmarshal(response.Body, &envelope); decodeErr != nil {
		return payload, fmt.Errorf("api_client.decode: %w", ErrMalformedEnvelope)
	}
	return envelope.Data, nil
}
