package loadbalance

import (
	"sync/atomic"

	"svcguard/registry"
)

// RoundRobinBalancer distributes requests evenly across all instances in order.
// Uses an atomic cursor for lock-free, goroutine-safe operation.
//
// The cursor is taken modulo the current candidate count on every pick, so a
// shrinking healthy set degrades fairness instead of indexing out of range.
type RoundRobinBalancer struct {
	cursor atomic.Uint64 // Next position; advanced after each Pick
}

func (b *RoundRobinBalancer) Pick(candidates []registry.ServiceConfig) (registry.ServiceConfig, bool) {
	if len(candidates) == 0 {
		return registry.ServiceConfig{}, false
	}
	index := (b.cursor.Add(1) - 1) % uint64(len(candidates))
	return candidates[index], true
}

func (b *RoundRobinBalancer) Name() string {
	return RoundRobin.String()
}
