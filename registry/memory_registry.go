package registry

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// entry is one registered instance. Entries of the same logical name are kept
// in a slice so that candidate order follows registration order.
type entry struct {
	config ServiceConfig
	health HealthRecord
}

// MemoryRegistry is the in-process Registry. All state lives in one map
// guarded by an RWMutex; every critical section is a plain map/slice update,
// so health writers never hold the lock across I/O.
type MemoryRegistry struct {
	mu       sync.RWMutex
	services map[string][]*entry // logical name → instances, registration order
	order    []string            // logical names, registration order
	now      func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		services: make(map[string][]*entry),
		now:      time.Now,
	}
}

func (r *MemoryRegistry) Register(cfg ServiceConfig) error {
	if cfg.Name == "" || cfg.BaseURL == "" {
		return fmt.Errorf("%w: name and base_url are required (name=%q)", ErrInvalidConfig, cfg.Name)
	}
	cfg = cfg.withDefaults()

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, known := r.services[cfg.Name]
	for _, e := range entries {
		if e.config.InstanceID == cfg.InstanceID {
			// Replace config only; the health record carries over.
			e.config = cfg
			return nil
		}
	}

	if !known {
		r.order = append(r.order, cfg.Name)
	}
	r.services[cfg.Name] = append(entries, &entry{
		config: cfg,
		health: HealthRecord{Status: StatusHealthy, LastCheckedAt: r.now()},
	})
	return nil
}

func (r *MemoryRegistry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[name]; !ok {
		return false
	}
	delete(r.services, name)
	r.removeName(name)
	return true
}

func (r *MemoryRegistry) UnregisterInstance(name, instanceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.services[name]
	for i, e := range entries {
		if e.config.InstanceID != instanceID {
			continue
		}
		rest := slices.Delete(entries, i, i+1)
		if len(rest) == 0 {
			delete(r.services, name)
			r.removeName(name)
		} else {
			r.services[name] = rest
		}
		return true
	}
	return false
}

// removeName must be called with mu held.
func (r *MemoryRegistry) removeName(name string) {
	if i := slices.Index(r.order, name); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
}

func (r *MemoryRegistry) SetHealth(name string, healthy bool) bool {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entries, ok := r.services[name]
	if !ok {
		return false
	}
	for _, e := range entries {
		e.health = record(healthy, now)
	}
	return true
}

func (r *MemoryRegistry) SetInstanceHealth(name, instanceID string, healthy bool) bool {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.services[name] {
		if e.config.InstanceID == instanceID {
			e.health = record(healthy, now)
			return true
		}
	}
	return false
}

func (r *MemoryRegistry) GetHealthyInstances(name string) []ServiceConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	healthy := make([]ServiceConfig, 0, len(r.services[name]))
	for _, e := range r.services[name] {
		if e.health.Healthy() {
			healthy = append(healthy, e.config)
		}
	}
	return healthy
}

func (r *MemoryRegistry) GetAll() []Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Instance, 0, len(r.order))
	for _, name := range r.order {
		for _, e := range r.services[name] {
			all = append(all, Instance{Config: e.config, Health: e.health})
		}
	}
	return all
}

func (r *MemoryRegistry) IsHealthy(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.services[name] {
		if e.health.Healthy() {
			return true
		}
	}
	return false
}

func (r *MemoryRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

func record(healthy bool, at time.Time) HealthRecord {
	status := StatusUnhealthy
	if healthy {
		status = StatusHealthy
	}
	return HealthRecord{Status: status, LastCheckedAt: at}
}
