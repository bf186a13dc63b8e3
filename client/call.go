package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"svcguard/circuitbreaker"
	"svcguard/loadbalance"
	"svcguard/metrics"
	"svcguard/registry"
	"svcguard/transport"
)

// CallOptions describe one call. The zero value is a GET with no body.
type CallOptions[T any] struct {
	Method string
	Header http.Header

	// Body is sent as is. When Body is nil and Payload is not, Payload is
	// encoded with the client's codec.
	Body    []byte
	Payload any

	// HashKey routes the call under the ConsistentHash strategy.
	HashKey string

	// Fallback produces a result once the attempt failed or was
	// short-circuited; cause is that failure.
	Fallback func(ctx context.Context, cause error) (T, error)
}

type CallResult[T any] struct {
	Data      T           `json:"data"`
	Status    int         `json:"status"`
	Header    http.Header `json:"headers,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Instance  string      `json:"instance,omitempty"` // Empty for fallback results
	Fallback  bool        `json:"fallback"`
}

// Call sends one request to a healthy instance of serviceName, picked by
// strategy, through the service's circuit breaker.
//
// A 2xx body is decoded into T with the client's codec; a []byte T receives
// the body undecoded. Errors are ErrServiceUnavailable, ErrRateLimited,
// circuitbreaker.ErrOpen, middleware.ErrRequestTimeout, *UpstreamHTTPError,
// *circuitbreaker.FallbackError, or a transport error.
func Call[T any](ctx context.Context, c *Client, serviceName, endpoint string, opts CallOptions[T], strategy loadbalance.Strategy) (*CallResult[T], error) {
	if err := ctx.Err(); err != nil {
		c.metrics.ObserveCall(serviceName, metrics.OutcomeCanceled, 0)
		return nil, err
	}

	candidates := c.registry.GetHealthyInstances(serviceName)
	if len(candidates) == 0 {
		c.metrics.ObserveCall(serviceName, metrics.OutcomeUnavailable, 0)
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, serviceName)
	}
	if !c.limiters.allow(serviceName) {
		c.metrics.ObserveCall(serviceName, metrics.OutcomeRateLimited, 0)
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, serviceName)
	}

	inst, ok := c.balancer.Pick(strategy, candidates, opts.HashKey)
	if !ok {
		c.metrics.ObserveCall(serviceName, metrics.OutcomeUnavailable, 0)
		return nil, fmt.Errorf("%w: %s", ErrServiceUnavailable, serviceName)
	}

	req, err := c.newRequest(inst, endpoint, opts.Method, opts.Header, opts.Body, opts.Payload)
	if err != nil {
		return nil, err
	}

	var elapsed time.Duration
	op := func() (any, error) {
		start := time.Now()
		defer func() { elapsed = time.Since(start) }()
		return c.attempt(ctx, req)
	}

	var fallback circuitbreaker.Fallback
	if opts.Fallback != nil {
		fallback = func(cause error) (any, error) {
			data, err := opts.Fallback(ctx, cause)
			if err != nil {
				return nil, err
			}
			return &CallResult[T]{Data: data, Timestamp: time.Now(), Fallback: true}, nil
		}
	}

	out, err := c.breakers.GetOrCreate(serviceName).ExecuteContext(ctx, op, fallback)
	if err != nil {
		outcome := metrics.OutcomeFailure
		switch {
		case errors.Is(err, circuitbreaker.ErrOpen):
			outcome = metrics.OutcomeOpen
		case ctx.Err() != nil:
			outcome = metrics.OutcomeCanceled
		}
		c.metrics.ObserveCall(serviceName, outcome, elapsed)
		return nil, err
	}

	switch v := out.(type) {
	case *CallResult[T]:
		c.metrics.ObserveCall(serviceName, metrics.OutcomeFallback, elapsed)
		c.logger.Debug("served fallback", zap.String("service", serviceName))
		return v, nil
	case *transport.Response:
		c.metrics.ObserveCall(serviceName, metrics.OutcomeSuccess, elapsed)
		data, err := decode[T](c, v)
		if err != nil {
			return nil, fmt.Errorf("%w from %s: %w", ErrDecode, serviceName, err)
		}
		return &CallResult[T]{
			Data:      data,
			Status:    v.Status,
			Header:    v.Header,
			Timestamp: time.Now(),
			Instance:  inst.InstanceID,
		}, nil
	default:
		return nil, fmt.Errorf("client: unexpected result %T", out)
	}
}

// Do is Call with the raw response body as data.
func (c *Client) Do(ctx context.Context, serviceName, endpoint string, opts CallOptions[[]byte], strategy loadbalance.Strategy) (*CallResult[[]byte], error) {
	return Call(ctx, c, serviceName, endpoint, opts, strategy)
}

func (c *Client) newRequest(inst registry.ServiceConfig, endpoint, method string, header http.Header, body []byte, payload any) (*transport.Request, error) {
	if method == "" {
		method = http.MethodGet
	}
	header = header.Clone()
	if body == nil && payload != nil {
		encoded, err := c.codec.Encode(payload)
		if err != nil {
			return nil, fmt.Errorf("client: encode request for %s: %w", inst.Name, err)
		}
		body = encoded
		if header == nil {
			header = http.Header{}
		}
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", c.codec.ContentType())
		}
	}

	return &transport.Request{
		Service:  inst.Name,
		Instance: inst.InstanceID,
		Method:   method,
		URL:      joinURL(inst.BaseURL, endpoint),
		Header:   header,
		Body:     body,
		Timeout:  inst.Timeout,
	}, nil
}

// attempt runs one request through the middleware chain. Its outcome is the
// one the breaker records.
func (c *Client) attempt(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	resp, err := c.handler(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &UpstreamHTTPError{Service: req.Service, Status: resp.Status, Body: resp.Body}
	}
	return resp, nil
}

func decode[T any](c *Client, resp *transport.Response) (T, error) {
	var data T
	if raw, ok := any(&data).(*[]byte); ok {
		*raw = resp.Body
		return data, nil
	}
	err := c.codec.Decode(resp.Body, &data)
	return data, err
}

func joinURL(base, endpoint string) string {
	if endpoint == "" {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(endpoint, "/")
}
