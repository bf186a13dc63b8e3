package client

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"svcguard/circuitbreaker"
	"svcguard/loadbalance"
	"svcguard/middleware"
)

const maxRetryDelay = 5 * time.Second

// CallWithRetry repeats Call up to MaxRetries more times, as configured on the
// service, with exponential backoff. Only timeouts, transport failures and 5xx
// answers are retried. Each attempt goes through the breaker on its own, so an
// opened circuit ends the loop. opts.Fallback runs once, after the last
// attempt.
func CallWithRetry[T any](ctx context.Context, c *Client, serviceName, endpoint string, opts CallOptions[T], strategy loadbalance.Strategy) (*CallResult[T], error) {
	fallback := opts.Fallback
	opts.Fallback = nil
	retries := c.maxRetries(serviceName)

	var lastErr error
	for i := 0; ; i++ {
		res, err := Call(ctx, c, serviceName, endpoint, opts, strategy)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if i >= retries || !retryable(err) {
			break
		}

		delay := min(c.retryBaseDelay*time.Duration(1<<i), maxRetryDelay)
		c.logger.Info("retrying service call",
			zap.String("service", serviceName),
			zap.Int("attempt", i+1),
			zap.Duration("backoff", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			lastErr = errors.Join(lastErr, ctx.Err())
			return nil, lastErr
		case <-timer.C:
		}
	}

	if fallback == nil || !fallbackApplies(lastErr) {
		return nil, lastErr
	}
	data, err := fallback(ctx, lastErr)
	if err != nil {
		return nil, &circuitbreaker.FallbackError{Service: serviceName, Cause: lastErr, Err: err}
	}
	return &CallResult[T]{Data: data, Timestamp: time.Now(), Fallback: true}, nil
}

func (c *Client) maxRetries(serviceName string) int {
	instances := c.registry.GetHealthyInstances(serviceName)
	if len(instances) == 0 {
		return 0
	}
	return max(0, instances[0].MaxRetries)
}

func retryable(err error) bool {
	var upstream *UpstreamHTTPError
	switch {
	case errors.As(err, &upstream):
		return upstream.Status >= 500
	case errors.Is(err, middleware.ErrRequestTimeout):
		return true
	case errors.Is(err, circuitbreaker.ErrOpen),
		errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrDecode),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

// fallbackApplies mirrors the breaker: fallbacks cover failed or
// short-circuited attempts, not calls that never reached the breaker.
func fallbackApplies(err error) bool {
	return !errors.Is(err, ErrServiceUnavailable) &&
		!errors.Is(err, ErrRateLimited) &&
		!errors.Is(err, ErrDecode)
}
