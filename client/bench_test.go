package client

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"svcguard/loadbalance"
	"svcguard/registry"
	"svcguard/transport"
)

func setupBenchClient(b *testing.B, instances int) *Client {
	b.Helper()
	tr := transport.Func(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return &transport.Response{Status: http.StatusOK, Body: []byte(`{"result":3}`)}, nil
	})
	c := New(registry.NewMemoryRegistry(), tr)
	for i := 0; i < instances; i++ {
		if err := c.RegisterService(registry.ServiceConfig{
			Name:       "matching-service",
			InstanceID: fmt.Sprintf("m%d", i),
			BaseURL:    fmt.Sprintf("http://m%d:8080", i),
		}); err != nil {
			b.Fatal(err)
		}
	}
	b.Cleanup(func() { _ = c.Close() })
	return c
}

// Serial calls, no network: measures the orchestration overhead.
func BenchmarkSerialCall(b *testing.B) {
	c := setupBenchClient(b, 3)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Do(context.Background(), "matching-service", "/api/score", CallOptions[[]byte]{}, loadbalance.RoundRobin); err != nil {
			b.Fatal(err)
		}
	}
}

// Concurrent calls contend on one breaker and one round-robin cursor.
func BenchmarkConcurrentCall(b *testing.B) {
	c := setupBenchClient(b, 3)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := c.Do(context.Background(), "matching-service", "/api/score", CallOptions[[]byte]{}, loadbalance.LeastConnections); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func BenchmarkTypedCall(b *testing.B) {
	c := setupBenchClient(b, 1)
	type reply struct {
		Result int `json:"result"`
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Call(context.Background(), c, "matching-service", "/api/score", CallOptions[reply]{}, loadbalance.RoundRobin); err != nil {
			b.Fatal(err)
		}
	}
}
