package client

import "svcguard/circuitbreaker"

type Stats struct {
	TotalServices        int                             `json:"total_services"`
	HealthyServices      int                             `json:"healthy_services"`
	CircuitBreakerStates map[string]circuitbreaker.State `json:"circuit_breaker_states"`
}

// GetStats counts logical service names, a name being healthy when any of its
// instances is. Breaker states include names that were since unregistered.
func (c *Client) GetStats() Stats {
	names := c.registry.Names()
	healthy := 0
	for _, name := range names {
		if c.registry.IsHealthy(name) {
			healthy++
		}
	}
	return Stats{
		TotalServices:        len(names),
		HealthyServices:      healthy,
		CircuitBreakerStates: c.breakers.States(),
	}
}
