package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"svcguard/transport"
)

func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			fields := []zap.Field{
				zap.String("service", req.Service),
				zap.String("instance", req.Instance),
				zap.String("method", req.Method),
				zap.String("url", req.URL),
				zap.String("request_id", req.Header.Get(RequestIDHeader)),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case err != nil:
				logger.Warn("service call failed", append(fields, zap.Error(err))...)
			case !resp.OK():
				logger.Warn("service call returned error status", append(fields, zap.Int("status", resp.Status))...)
			default:
				logger.Debug("service call", append(fields, zap.Int("status", resp.Status))...)
			}
			return resp, err
		}
	}
}
