// Package admin serves the operator HTTP API: stats, registry administration,
// on-demand health checks, circuit breaker snapshots and Prometheus metrics.
package admin

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"svcguard/client"
	"svcguard/loadbalance"
)

type Server struct {
	e      *echo.Echo
	addr   string
	logger *zap.Logger
}

type Option func(*options)

type options struct {
	logger          *zap.Logger
	gatherer        prometheus.Gatherer
	defaultStrategy loadbalance.Strategy
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithGatherer sets the registry /metrics is served from.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *options) {
		o.gatherer = g
	}
}

// WithDefaultStrategy is used by the call endpoint when a request names none.
func WithDefaultStrategy(s loadbalance.Strategy) Option {
	return func(o *options) {
		o.defaultStrategy = s
	}
}

func NewServer(addr string, c *client.Client, opts ...Option) *Server {
	o := options{
		logger:   zap.NewNop(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			o.logger.Debug("admin request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	}))

	h := NewHandler(c, o.defaultStrategy)
	h.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})))

	return &Server{e: e, addr: addr, logger: o.logger}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start blocks serving the API until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("admin API listening", zap.String("addr", s.addr))
	if err := s.e.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
