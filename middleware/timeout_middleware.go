package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"svcguard/transport"
)

// ErrRequestTimeout is returned when an attempt does not finish within its budget.
var ErrRequestTimeout = errors.New("middleware: request timed out")

type result struct {
	resp *transport.Response
	err  error
}

// TimeoutMiddleware bounds each attempt by req.Timeout, or by fallback when
// the request carries none. The attempt runs in its own goroutine; when the
// budget runs out the caller gets ErrRequestTimeout at once and the late
// result is discarded.
func TimeoutMiddleware(fallback time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			timeout := req.Timeout
			if timeout <= 0 {
				timeout = fallback
			}
			if timeout <= 0 {
				return next(ctx, req)
			}

			attemptCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan result, 1) // buffered so a late attempt never blocks
			go func() {
				resp, err := next(attemptCtx, req)
				done <- result{resp, err}
			}()

			select {
			case r := <-done:
				if r.err != nil && ctx.Err() == nil && attemptCtx.Err() != nil {
					return nil, fmt.Errorf("%w after %s", ErrRequestTimeout, timeout)
				}
				return r.resp, r.err
			case <-attemptCtx.Done():
				// The caller's own cancellation or deadline is reported as is.
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				return nil, fmt.Errorf("%w after %s", ErrRequestTimeout, timeout)
			}
		}
	}
}
