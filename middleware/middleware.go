// Package middleware wraps a single transport attempt in an onion of
// cross-cutting behaviour: request IDs, logging, and the per-call timeout.
package middleware

import (
	"context"

	"svcguard/transport"
)

type HandlerFunc func(ctx context.Context, req *transport.Request) (*transport.Response, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so that the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Handler turns a Transport into the innermost HandlerFunc.
func Handler(t transport.Transport) HandlerFunc {
	return t.Do
}
