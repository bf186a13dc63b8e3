// Package loadbalance selects one instance out of the healthy candidates of a
// logical service.
//
// Strategies form a closed set:
//   - RoundRobin:       default, equal-capacity instances
//   - Random:           uniform pick
//   - LeastConnections: fewest in-flight calls, tracked by Tracker
//   - WeightedRandom:   heterogeneous instances (ServiceConfig.Weight)
//   - ConsistentHash:   affinity by key, e.g. a conversation ID on messaging-service
//
// Every strategy returns false for an empty candidate list and never indexes
// out of range when the list shrinks between calls.
package loadbalance

import (
	"fmt"
	"strings"

	"svcguard/registry"
)

// Strategy is the selection algorithm requested for a call.
type Strategy int

const (
	RoundRobin Strategy = iota
	Random
	LeastConnections
	WeightedRandom
	ConsistentHash
)

func (s Strategy) String() string {
	switch s {
	case RoundRobin:
		return "roundRobin"
	case Random:
		return "random"
	case LeastConnections:
		return "leastConnections"
	case WeightedRandom:
		return "weightedRandom"
	case ConsistentHash:
		return "consistentHash"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy maps config and admin input to a Strategy. Matching ignores
// case, dashes and underscores ("least_connections" == "leastConnections").
func ParseStrategy(s string) (Strategy, error) {
	norm := strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(s))
	switch norm {
	case "", "roundrobin":
		return RoundRobin, nil
	case "random":
		return Random, nil
	case "leastconnections", "leastconn":
		return LeastConnections, nil
	case "weightedrandom", "weighted":
		return WeightedRandom, nil
	case "consistenthash", "hash":
		return ConsistentHash, nil
	}
	return RoundRobin, fmt.Errorf("loadbalance: unknown strategy %q", s)
}

// Balancer is implemented by every key-less strategy.
// Pick is called on every call and must be goroutine-safe.
type Balancer interface {
	Pick(candidates []registry.ServiceConfig) (registry.ServiceConfig, bool)
	Name() string
}

// LoadBalancer owns one instance of every strategy. A client holds exactly one
// LoadBalancer, so the round-robin cursor is shared by all service names.
type LoadBalancer struct {
	tracker    *Tracker
	roundRobin *RoundRobinBalancer
	random     *RandomBalancer
	leastConn  *LeastConnectionsBalancer
	weighted   *WeightedRandomBalancer
	hash       *ConsistentHashBalancer
}

func New() *LoadBalancer {
	tracker := NewTracker()
	return &LoadBalancer{
		tracker:    tracker,
		roundRobin: &RoundRobinBalancer{},
		random:     &RandomBalancer{},
		leastConn:  NewLeastConnectionsBalancer(tracker),
		weighted:   &WeightedRandomBalancer{},
		hash:       NewConsistentHashBalancer(),
	}
}

// Tracker returns the in-flight bookkeeping used by LeastConnections.
func (lb *LoadBalancer) Tracker() *Tracker {
	return lb.tracker
}

// Pick dispatches to the strategy. key is only used by ConsistentHash.
func (lb *LoadBalancer) Pick(strategy Strategy, candidates []registry.ServiceConfig, key string) (registry.ServiceConfig, bool) {
	switch strategy {
	case Random:
		return lb.random.Pick(candidates)
	case LeastConnections:
		return lb.leastConn.Pick(candidates)
	case WeightedRandom:
		return lb.weighted.Pick(candidates)
	case ConsistentHash:
		return lb.hash.Pick(candidates, key)
	default:
		return lb.roundRobin.Pick(candidates)
	}
}
