package loadbalance

import (
	"math/rand/v2"

	"svcguard/registry"
)

// RandomBalancer picks uniformly. The top-level math/rand/v2 functions are
// safe for concurrent use.
type RandomBalancer struct{}

func (b *RandomBalancer) Pick(candidates []registry.ServiceConfig) (registry.ServiceConfig, bool) {
	if len(candidates) == 0 {
		return registry.ServiceConfig{}, false
	}
	return candidates[rand.IntN(len(candidates))], true
}

func (b *RandomBalancer) Name() string {
	return Random.String()
}
