// Package types holds the JSON envelopes shared by the API and its clients.
package types

// Success wraps every 2xx body as {"data": ...}.
type Success[T any] struct {
	Data T `json:"data"`
}

// Failure wraps every error body as {"error": {...}}.
type Failure struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
