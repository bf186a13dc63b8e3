package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"svcguard/transport"
)

const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDMiddleware stamps every attempt with an X-Request-ID header. An ID
// already present on the request or in ctx is kept.
func RequestIDMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			id := req.Header.Get(RequestIDHeader)
			if id == "" {
				id = RequestIDFromContext(ctx)
			}
			if id == "" {
				id = uuid.NewString()
			}

			// The caller's header map may be shared between attempts.
			out := *req
			out.Header = req.Header.Clone()
			if out.Header == nil {
				out.Header = http.Header{}
			}
			out.Header.Set(RequestIDHeader, id)

			return next(WithRequestID(ctx, id), &out)
		}
	}
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
