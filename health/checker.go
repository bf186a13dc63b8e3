// Package health probes every registered instance on a fixed interval and
// writes the results into the registry. It never looks at circuit breakers:
// reachability and recent call failures are independent signals.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"svcguard/registry"
	"svcguard/transport"
)

const (
	DefaultInterval    = 30 * time.Second
	DefaultTimeout     = 5 * time.Second
	DefaultConcurrency = 8
)

type Settings struct {
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`     // Per probe
	Concurrency int           `mapstructure:"concurrency"` // Probes in flight at once
}

func DefaultSettings() Settings {
	return Settings{
		Interval:    DefaultInterval,
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
	}
}

func (s Settings) withDefaults() Settings {
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.Concurrency <= 0 {
		s.Concurrency = DefaultConcurrency
	}
	return s
}

// Observer receives every probe result, e.g. to export it as a metric.
type Observer interface {
	SetHealth(service, instance string, healthy bool)
}

type Option func(*Checker)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Checker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Checker) {
		c.observer = o
	}
}

// Checker periodically probes BaseURL+HealthCheckPath of every instance.
type Checker struct {
	settings  Settings
	registry  registry.Registry
	transport transport.Transport
	logger    *zap.Logger
	observer  Observer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewChecker(reg registry.Registry, tr transport.Transport, settings Settings, opts ...Option) *Checker {
	c := &Checker{
		settings:  settings.withDefaults(),
		registry:  reg,
		transport: tr,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start runs one round right away and then one per Interval, until ctx is
// done or Stop is called. Starting a running checker is a no-op.
func (c *Checker) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(c.settings.Interval)
		defer ticker.Stop()

		c.CheckAll(ctx)
		for {
			select {
			case <-ticker.C:
				c.CheckAll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}(c.done)

	c.logger.Info("health checker started", zap.Duration("interval", c.settings.Interval))
}

// Stop terminates the loop and waits for an in-progress round to finish.
func (c *Checker) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	c.logger.Info("health checker stopped")
}

// CheckAll probes every instance once and returns, per logical name, whether
// at least one instance answered healthy. Probes still running when ctx is
// done leave the instance's health as it was.
func (c *Checker) CheckAll(ctx context.Context) map[string]bool {
	instances := c.registry.GetAll()
	results := make([]bool, len(instances))

	var g errgroup.Group
	g.SetLimit(c.settings.Concurrency)
	for i, inst := range instances {
		g.Go(func() error {
			healthy := c.CheckInstance(ctx, inst.Config)
			if ctx.Err() != nil {
				// Round abandoned by Stop or ctx; a cut-off probe proves nothing.
				results[i] = inst.Health.Healthy()
				return nil
			}
			results[i] = healthy
			c.record(inst, healthy)
			return nil
		})
	}
	_ = g.Wait()

	status := make(map[string]bool, len(instances))
	for i, inst := range instances {
		status[inst.Config.Name] = status[inst.Config.Name] || results[i]
	}
	return status
}

// CheckInstance issues one probe. Any 2xx answer within Timeout is healthy.
func (c *Checker) CheckInstance(ctx context.Context, cfg registry.ServiceConfig) bool {
	ctx, cancel := context.WithTimeout(ctx, c.settings.Timeout)
	defer cancel()

	resp, err := c.transport.Do(ctx, &transport.Request{
		Service:  cfg.Name,
		Instance: cfg.InstanceID,
		URL:      cfg.BaseURL + cfg.HealthCheckPath,
	})
	if err != nil {
		c.logger.Debug("health probe failed",
			zap.String("service", cfg.Name),
			zap.String("instance", cfg.InstanceID),
			zap.Error(err))
		return false
	}
	return resp.OK()
}

func (c *Checker) record(inst registry.Instance, healthy bool) {
	cfg := inst.Config
	if !c.registry.SetInstanceHealth(cfg.Name, cfg.InstanceID, healthy) {
		return // unregistered while probing
	}
	if c.observer != nil {
		c.observer.SetHealth(cfg.Name, cfg.InstanceID, healthy)
	}

	if inst.Health.Healthy() != healthy {
		fields := []zap.Field{zap.String("service", cfg.Name), zap.String("instance", cfg.InstanceID)}
		if healthy {
			c.logger.Info("instance is healthy again", fields...)
		} else {
			c.logger.Warn("instance became unhealthy", fields...)
		}
	}
}
