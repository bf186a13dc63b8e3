// Package transport is the boundary between the client and the network: a
// request goes out, a status, headers and body come back. Nothing above this
// package knows which protocol carried the bytes.
package transport

import (
	"context"
	"net/http"
	"time"
)

// Request is one outgoing attempt against a single service instance.
type Request struct {
	Service  string        // Logical service name, for logs and metrics
	Instance string        // Instance ID the balancer picked
	Method   string        // HTTP method, GET when empty
	URL      string        // BaseURL + endpoint
	Header   http.Header
	Body     []byte
	Timeout  time.Duration // Attempt budget, enforced by middleware
}

// Response is what an instance answered. Non-2xx statuses are still a
// Response; deciding whether they are failures is the caller's job.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether Status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Func adapts a plain function to Transport.
type Func func(ctx context.Context, req *Request) (*Response, error)

func (f Func) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
