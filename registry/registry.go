// Package registry holds the static configuration and the live health flag of
// every backend instance the client can reach.
//
// Instances are grouped under a logical service name ("matching-service").
// Several instances may share one name; the registry keeps them in
// registration order so that load balancing over the healthy subset is stable:
//
//	"matching-service" → [ {id: a, healthy}, {id: b, unhealthy}, {id: c, healthy} ]
//	GetHealthyInstances("matching-service") → [a, c]
package registry

import (
	"errors"
	"time"
)

const (
	DefaultHealthCheckPath = "/health"
	DefaultTimeout         = 5 * time.Second
)

// ErrInvalidConfig is returned by Register when a config misses a required field.
var ErrInvalidConfig = errors.New("registry: invalid service config")

// ServiceConfig describes one reachable instance of a logical service.
type ServiceConfig struct {
	Name            string        `mapstructure:"name" json:"name"`                           // Logical service name, e.g. "auth-service"
	InstanceID      string        `mapstructure:"instance_id" json:"instance_id"`             // Defaults to Name (one instance per name)
	BaseURL         string        `mapstructure:"base_url" json:"base_url"`                   // e.g. "http://10.0.0.12:8080"
	HealthCheckPath string        `mapstructure:"health_check_path" json:"health_check_path"` // Probed by the health checker
	Timeout         time.Duration `mapstructure:"timeout" json:"timeout"`                     // Per-call timeout
	MaxRetries      int           `mapstructure:"max_retries" json:"max_retries"`             // Used by caller-side retry, never by the breaker
	Weight          int           `mapstructure:"weight" json:"weight"`                       // Weight for WeightedRandom balancing
}

// Key identifies the instance across the whole registry.
func (c ServiceConfig) Key() string {
	return InstanceKey(c.Name, c.InstanceID)
}

func InstanceKey(name, instanceID string) string {
	return name + "/" + instanceID
}

// withDefaults fills the optional fields.
func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.InstanceID == "" {
		c.InstanceID = c.Name
	}
	if c.HealthCheckPath == "" {
		c.HealthCheckPath = DefaultHealthCheckPath
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Weight <= 0 {
		c.Weight = 1
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// HealthRecord is the registry's belief about whether an instance is reachable.
type HealthRecord struct {
	Status        HealthStatus `json:"status"`
	LastCheckedAt time.Time    `json:"last_checked_at"`
}

func (h HealthRecord) Healthy() bool {
	return h.Status == StatusHealthy
}

// Instance is a config together with its current health record.
type Instance struct {
	Config ServiceConfig `json:"config"`
	Health HealthRecord  `json:"health"`
}

// Registry is the lookup surface the client and the health checker depend on.
// Implementations must be goroutine-safe.
type Registry interface {
	// Register inserts or replaces the config of (Name, InstanceID). A new
	// instance starts healthy; a replaced one keeps its health record.
	Register(cfg ServiceConfig) error

	// Unregister removes every instance of the logical service.
	Unregister(name string) bool

	// UnregisterInstance removes a single instance.
	UnregisterInstance(name, instanceID string) bool

	// SetHealth marks every instance of name. Returns false for an unknown name.
	SetHealth(name string, healthy bool) bool

	// SetInstanceHealth marks a single instance. Returns false if it is unknown.
	SetInstanceHealth(name, instanceID string, healthy bool) bool

	// GetHealthyInstances returns the healthy instances of name in registration order.
	GetHealthyInstances(name string) []ServiceConfig

	// GetAll returns every instance with its health record.
	GetAll() []Instance

	// IsHealthy reports whether at least one instance of name is healthy.
	IsHealthy(name string) bool

	// Names returns the registered logical names in registration order.
	Names() []string
}
