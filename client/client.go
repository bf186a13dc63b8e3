// Package client is the single entry point feature code uses to reach a
// backend service. A call flows registry → balancer → circuit breaker →
// timeout-guarded attempt, and comes back as a result, a fallback result, or a
// typed error.
package client

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"svcguard/circuitbreaker"
	"svcguard/codec"
	"svcguard/health"
	"svcguard/loadbalance"
	"svcguard/metrics"
	"svcguard/middleware"
	"svcguard/registry"
	"svcguard/transport"
)

const defaultRetryBaseDelay = 100 * time.Millisecond

// Client owns its registry, breakers and balancer cursor. Independent clients
// share nothing.
type Client struct {
	registry  registry.Registry
	transport transport.Transport
	balancer  *loadbalance.LoadBalancer
	breakers  *circuitbreaker.Manager
	checker   *health.Checker
	limiters  *limiterSet
	codec     codec.Codec
	metrics   *metrics.Metrics
	logger    *zap.Logger
	handler   middleware.HandlerFunc

	breakerSettings circuitbreaker.Settings
	healthSettings  health.Settings
	middlewares     []middleware.Middleware
	retryBaseDelay  time.Duration
}

// New builds a client. A nil reg starts from an empty in-memory registry; a
// nil tr sends over pooled HTTP connections.
func New(reg registry.Registry, tr transport.Transport, opts ...Option) *Client {
	if reg == nil {
		reg = registry.NewMemoryRegistry()
	}
	if tr == nil {
		tr = transport.NewHTTPTransport(transport.DefaultPoolConfig())
	}

	c := &Client{
		registry:        reg,
		transport:       tr,
		balancer:        loadbalance.New(),
		limiters:        newLimiterSet(),
		codec:           codec.GetCodec(codec.CodecTypeJSON),
		logger:          zap.NewNop(),
		breakerSettings: circuitbreaker.DefaultSettings(),
		healthSettings:  health.DefaultSettings(),
		retryBaseDelay:  defaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breakers = circuitbreaker.NewManager(c.breakerSettings, c.logger)
	if c.metrics != nil {
		c.breakers.AddListener(c.metrics)
	}

	checkerOpts := []health.Option{health.WithLogger(c.logger)}
	if c.metrics != nil {
		checkerOpts = append(checkerOpts, health.WithObserver(c.metrics))
	}
	c.checker = health.NewChecker(c.registry, c.transport, c.healthSettings, checkerOpts...)

	chain := []middleware.Middleware{
		middleware.RequestIDMiddleware(),
		middleware.LoggingMiddleware(c.logger),
	}
	chain = append(chain, c.middlewares...)
	chain = append(chain, middleware.TimeoutMiddleware(registry.DefaultTimeout), c.trackInFlight)
	c.handler = middleware.Chain(chain...)(middleware.Handler(c.transport))

	return c
}

// trackInFlight sits inside the timeout, so a request stays counted until the
// transport returns even when the timeout middleware already gave up on it.
func (c *Client) trackInFlight(next middleware.HandlerFunc) middleware.HandlerFunc {
	return func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		done := c.balancer.Tracker().BeginInstance(req.Service, req.Instance)
		defer done()
		return next(ctx, req)
	}
}

func (c *Client) Registry() registry.Registry {
	return c.registry
}

func (c *Client) Breakers() *circuitbreaker.Manager {
	return c.breakers
}

// RegisterService adds or replaces an instance. An existing breaker for the
// name is left as it is: a new config says nothing about recent failures.
func (c *Client) RegisterService(cfg registry.ServiceConfig) error {
	if err := c.registry.Register(cfg); err != nil {
		return err
	}
	c.logger.Info("service registered",
		zap.String("service", cfg.Name),
		zap.String("instance", cfg.InstanceID),
		zap.String("base_url", cfg.BaseURL))
	return nil
}

// UnregisterService removes every instance of name. Its breaker survives.
func (c *Client) UnregisterService(name string) bool {
	if !c.registry.Unregister(name) {
		return false
	}
	c.limiters.forget(name)
	c.metrics.ForgetService(name)
	c.logger.Info("service unregistered", zap.String("service", name))
	return true
}

// HealthCheckAll probes every instance now and reports, per name, whether any
// instance is healthy.
func (c *Client) HealthCheckAll(ctx context.Context) map[string]bool {
	return c.checker.CheckAll(ctx)
}

// StartHealthChecks runs HealthCheckAll on the configured interval until ctx
// is done or Close is called.
func (c *Client) StartHealthChecks(ctx context.Context) {
	c.checker.Start(ctx)
}

// Close stops health checks and releases pooled connections.
func (c *Client) Close() error {
	c.checker.Stop()
	if closer, ok := c.transport.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
