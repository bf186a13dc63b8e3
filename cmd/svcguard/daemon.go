package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"svcguard/admin"
	"svcguard/client"
	"svcguard/config"
	"svcguard/loadbalance"
	"svcguard/metrics"
	"svcguard/registry"
	"svcguard/transport"
)

const shutdownTimeout = 10 * time.Second

// daemon is the long-running process: one client, its health checks, and the
// admin API in front of it.
type daemon struct {
	client *client.Client
	admin  *admin.Server
	logger *zap.Logger
}

// newDaemon wires everything from cfg. A nil reg uses a fresh Prometheus
// registry that also carries the Go and process collectors.
func newDaemon(cfg *config.Config, adminAddr string, logger *zap.Logger, reg *prometheus.Registry) (*daemon, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	strategy, err := loadbalance.ParseStrategy(cfg.DefaultStrategy)
	if err != nil {
		return nil, err
	}

	c := client.New(registry.NewMemoryRegistry(), transport.NewHTTPTransport(cfg.Transport),
		client.WithLogger(logger),
		client.WithMetrics(m),
		client.WithBreakerSettings(cfg.CircuitBreaker),
		client.WithHealthSettings(cfg.HealthCheck),
		client.WithRateLimit(cfg.RateLimit))

	for _, svc := range cfg.Services {
		if err := c.RegisterService(svc); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("register %s: %w", svc.Name, err)
		}
	}

	srv := admin.NewServer(adminAddr, c,
		admin.WithLogger(logger),
		admin.WithGatherer(reg),
		admin.WithDefaultStrategy(strategy))

	return &daemon{client: c, admin: srv, logger: logger}, nil
}

// run starts health checks and the admin API, then blocks until ctx is done
// or the API fails, and shuts both down.
func (d *daemon) run(ctx context.Context) error {
	d.client.StartHealthChecks(ctx)

	errc := make(chan error, 1)
	go func() { errc <- d.admin.Start() }()

	var runErr error
	select {
	case <-ctx.Done():
		d.logger.Info("shutting down")
	case runErr = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.admin.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("admin API shutdown", zap.Error(err))
	}
	if err := d.client.Close(); err != nil {
		d.logger.Warn("client close", zap.Error(err))
	}
	return runErr
}
