package loadbalance

import (
	"sync"
	"sync/atomic"

	"svcguard/registry"
)

// Tracker counts in-flight calls per instance key. The client brackets every
// request it puts on the wire with Begin/the returned done func, whatever
// strategy picked the instance. A request abandoned on timeout stays counted
// until it actually returns.
type Tracker struct {
	counts sync.Map // instance key → *atomic.Int64
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Begin increments the in-flight count of the instance and returns a func that
// decrements it. The func is safe to call more than once.
func (t *Tracker) Begin(cfg registry.ServiceConfig) (done func()) {
	return t.BeginInstance(cfg.Name, cfg.InstanceID)
}

// BeginInstance is Begin by service name and instance ID.
func (t *Tracker) BeginInstance(service, instanceID string) (done func()) {
	n := t.counter(registry.InstanceKey(service, instanceID))
	n.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() { n.Add(-1) })
	}
}

// Active returns the current number of in-flight calls of the instance.
func (t *Tracker) Active(cfg registry.ServiceConfig) int64 {
	if v, ok := t.counts.Load(cfg.Key()); ok {
		return v.(*atomic.Int64).Load()
	}
	return 0
}

func (t *Tracker) counter(key string) *atomic.Int64 {
	if v, ok := t.counts.Load(key); ok {
		return v.(*atomic.Int64)
	}
	v, _ := t.counts.LoadOrStore(key, new(atomic.Int64))
	return v.(*atomic.Int64)
}

// LeastConnectionsBalancer picks the candidate with the fewest in-flight
// calls. Ties go to the earliest candidate, which keeps selection deterministic.
type LeastConnectionsBalancer struct {
	tracker *Tracker
}

func NewLeastConnectionsBalancer(tracker *Tracker) *LeastConnectionsBalancer {
	return &LeastConnectionsBalancer{tracker: tracker}
}

func (b *LeastConnectionsBalancer) Pick(candidates []registry.ServiceConfig) (registry.ServiceConfig, bool) {
	if len(candidates) == 0 {
		return registry.ServiceConfig{}, false
	}

	best := 0
	bestActive := b.tracker.Active(candidates[0])
	for i := 1; i < len(candidates); i++ {
		if active := b.tracker.Active(candidates[i]); active < bestActive {
			best, bestActive = i, active
		}
	}
	return candidates[best], true
}

func (b *LeastConnectionsBalancer) Name() string {
	return LeastConnections.String()
}
