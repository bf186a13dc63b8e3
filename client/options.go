package client

import (
	"time"

	"go.uber.org/zap"

	"svcguard/circuitbreaker"
	"svcguard/codec"
	"svcguard/health"
	"svcguard/loadbalance"
	"svcguard/metrics"
	"svcguard/middleware"
)

type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithBreakerSettings(s circuitbreaker.Settings) Option {
	return func(c *Client) {
		c.breakerSettings = s
	}
}

func WithHealthSettings(s health.Settings) Option {
	return func(c *Client) {
		c.healthSettings = s
	}
}

// WithRateLimit applies rl to every service without its own limit.
func WithRateLimit(rl RateLimit) Option {
	return func(c *Client) {
		c.limiters.def = rl
	}
}

func WithServiceRateLimit(service string, rl RateLimit) Option {
	return func(c *Client) {
		c.limiters.overrides[service] = rl
	}
}

// WithMiddleware adds middlewares around each attempt, inside logging and
// outside the timeout.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(c *Client) {
		c.middlewares = append(c.middlewares, mws...)
	}
}

func WithCodec(cdc codec.Codec) Option {
	return func(c *Client) {
		if cdc != nil {
			c.codec = cdc
		}
	}
}

func WithBalancer(lb *loadbalance.LoadBalancer) Option {
	return func(c *Client) {
		if lb != nil {
			c.balancer = lb
		}
	}
}

// WithRetryBaseDelay sets the first backoff of CallWithRetry; later ones double.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryBaseDelay = d
		}
	}
}
