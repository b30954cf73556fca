package dto

// Response is the envelope of every successful body; failures are written as Problem.
type Response[T any] struct {
	Success   bool   `json:"success"`
	Data      T      `json:"data"`
	RequestID string `json:"request_id,omitempty"`
}

// OK wraps data for a successful response
func OK[T any](data T, requestID string) Response[T] {
	return Response[T]{Success: true, Data: data, RequestID: requestID}
}
