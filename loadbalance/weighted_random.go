package loadbalance

import (
	"math/rand/v2"

	"svcguard/registry"
)

type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(candidates []registry.ServiceConfig) (registry.ServiceConfig, bool) {
	if len(candidates) == 0 {
		return registry.ServiceConfig{}, false
	}

	// Non-positive weights count as 1 so a misconfigured instance is still reachable.
	totalWeight := 0
	for _, c := range candidates {
		totalWeight += weightOf(c)
	}

	r := rand.IntN(totalWeight)
	for _, c := range candidates {
		r -= weightOf(c)
		if r < 0 {
			return c, true
		}
	}
	return candidates[len(candidates)-1], true
}

func (b *WeightedRandomBalancer) Name() string {
	return WeightedRandom.String()
}

func weightOf(c registry.ServiceConfig) int {
	if c.Weight <= 0 {
		return 1
	}
	return c.Weight
}
