package client

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable means no healthy instance is registered under the
	// name. No breaker is consulted.
	ErrServiceUnavailable = errors.New("client: service unavailable")

	// ErrRateLimited means the client-side limit for the service was hit
	// before any attempt was made. It is not a breaker failure.
	ErrRateLimited = errors.New("client: rate limit exceeded")

	// ErrDecode wraps a response body that did not decode into the result type.
	// The call itself succeeded and counted as a success.
	ErrDecode = errors.New("client: decode response")
)

// UpstreamHTTPError is an attempt that completed with a non-2xx status.
type UpstreamHTTPError struct {
	Service string
	Status  int
	Body    []byte
}

func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("client: %s answered status %d", e.Service, e.Status)
}
