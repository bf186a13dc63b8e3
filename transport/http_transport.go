package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// DefaultMaxResponseBytes caps how much of a response body is read.
const DefaultMaxResponseBytes int64 = 10 << 20

// HTTPTransport sends requests over pooled HTTP/1.1 connections.
// It never applies a timeout of its own; ctx carries the deadline.
type HTTPTransport struct {
	client           *http.Client
	rt               *http.Transport
	maxResponseBytes int64
}

func NewHTTPTransport(pool PoolConfig) *HTTPTransport {
	rt := pool.roundTripper()
	return &HTTPTransport{
		client:           &http.Client{Transport: rt},
		rt:               rt,
		maxResponseBytes: DefaultMaxResponseBytes,
	}
}

// Do performs req. A transport-level failure (dial, reset, cancelled ctx) is
// returned as an error; any status the instance answers is a Response.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport: %s %s: %w", method, req.URL, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, t.maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("transport: read body: %w", err)
	}

	return &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header.Clone(),
		Body:   data,
	}, nil
}

// Close drops every idle pooled connection.
func (t *HTTPTransport) Close() error {
	t.rt.CloseIdleConnections()
	return nil
}
