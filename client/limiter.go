package client

import (
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimit is a token bucket: Rate tokens per second, up to Burst at once.
// A zero Rate disables limiting.
type RateLimit struct {
	Rate  float64 `mapstructure:"rate" json:"rate"`
	Burst int     `mapstructure:"burst" json:"burst"`
}

func (r RateLimit) enabled() bool {
	return r.Rate > 0
}

func (r RateLimit) burst() int {
	if r.Burst > 0 {
		return r.Burst
	}
	return max(1, int(math.Ceil(r.Rate)))
}

// limiterSet holds one token bucket per logical service, created on first use.
type limiterSet struct {
	def       RateLimit
	overrides map[string]RateLimit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newLimiterSet() *limiterSet {
	return &limiterSet{
		overrides: make(map[string]RateLimit),
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (s *limiterSet) allow(service string) bool {
	rl, ok := s.overrides[service]
	if !ok {
		rl = s.def
	}
	if !rl.enabled() {
		return true
	}

	s.mu.Lock()
	limiter, ok := s.limiters[service]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rl.Rate), rl.burst())
		s.limiters[service] = limiter
	}
	s.mu.Unlock()

	return limiter.Allow()
}

func (s *limiterSet) forget(service string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.limiters, service)
}
