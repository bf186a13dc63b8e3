package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

const (
	DefaultFailureThreshold = 5
	DefaultOpenDuration     = 60 * time.Second
)

// ErrOpen is returned when a call is short-circuited: the circuit is open, or
// it is half-open and the single trial call is already in flight.
var ErrOpen = errors.New("circuitbreaker: circuit open")

// FallbackError reports that the fallback itself failed. Cause is the error
// that triggered the fallback.
type FallbackError struct {
	Service string
	Cause   error
	Err     error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("circuitbreaker: fallback for %s failed: %v (cause: %v)", e.Service, e.Err, e.Cause)
}

func (e *FallbackError) Unwrap() error {
	return e.Err
}

// Settings configures every breaker created by a Manager.
type Settings struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"` // Consecutive failures that open the circuit
	OpenDuration     time.Duration `mapstructure:"open_duration"`     // Time spent open before the half-open trial
}

func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: DefaultFailureThreshold,
		OpenDuration:     DefaultOpenDuration,
	}
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = DefaultFailureThreshold
	}
	if s.OpenDuration <= 0 {
		s.OpenDuration = DefaultOpenDuration
	}
	return s
}

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
	StateUnknown  State = "unknown"
)

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateUnknown
	}
}

// Snapshot is a point-in-time view of one breaker.
// ConsecutiveFailures keeps counting across transitions and is only reset by
// a success, so an open breaker reports the failures that opened it.
type Snapshot struct {
	Name                string    `json:"name"`
	State               State     `json:"state"`
	ConsecutiveFailures uint32    `json:"consecutive_failures"`
	LastFailureAt       time.Time `json:"last_failure_at,omitzero"`
}

// Fallback produces an alternative result once the primary call failed or was
// short-circuited. cause is that failure.
type Fallback func(cause error) (any, error)

// Breaker guards calls to one logical service.
type Breaker struct {
	name string
	cb   *gobreaker.TwoStepCircuitBreaker

	mu                  sync.Mutex
	consecutiveFailures uint32
	lastFailureAt       time.Time // Set whenever the circuit (re)opens
}

// newBreaker builds the gobreaker state machine. onChange runs while the
// gobreaker lock is held and must not call back into the breaker.
func newBreaker(name string, settings Settings, onChange func(name string, from, to State)) *Breaker {
	settings = settings.withDefaults()
	b := &Breaker{name: name}

	b.cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // exactly one trial call while half-open
		Interval:    0, // closed-state counts are only cleared by a success
		Timeout:     settings.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				b.mu.Lock()
				b.lastFailureAt = time.Now()
				b.mu.Unlock()
			}
			if onChange != nil {
				onChange(name, fromGobreaker(from), fromGobreaker(to))
			}
		},
	})
	return b
}

func (b *Breaker) Name() string {
	return b.name
}

// Execute runs op through the circuit. On success op's result is returned.
// On failure, including a short-circuit, fallback is invoked when non-nil and
// its result returned; a failing fallback yields *FallbackError. Without a
// fallback the original error is returned.
//
// op runs at most once per Execute and is never run while the circuit is open.
func (b *Breaker) Execute(op func() (any, error), fallback Fallback) (any, error) {
	return b.ExecuteContext(context.Background(), op, fallback)
}

// ExecuteContext is Execute for an op bound to the caller's ctx. When op fails
// after ctx is done, the failure is the caller's and not the service's: it is
// not counted, except that an abandoned half-open trial reopens the circuit.
func (b *Breaker) ExecuteContext(ctx context.Context, op func() (any, error), fallback Fallback) (any, error) {
	result, err := b.run(ctx, op)
	if err == nil {
		return result, nil
	}

	if fallback == nil {
		return nil, err
	}

	fbResult, fbErr := fallback(err)
	if fbErr != nil {
		return nil, &FallbackError{Service: b.name, Cause: err, Err: fbErr}
	}
	return fbResult, nil
}

func (b *Breaker) run(ctx context.Context, op func() (any, error)) (result any, err error) {
	done, err := b.cb.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %s", ErrOpen, b.name)
		}
		return nil, err
	}

	defer func() {
		if e := recover(); e != nil {
			b.record(done, false)
			panic(e)
		}
	}()

	result, err = op()
	switch {
	case err == nil:
		b.record(done, true)
	case ctx.Err() != nil:
		// The half-open trial slot stays taken until an outcome is recorded.
		if b.cb.State() == gobreaker.StateHalfOpen {
			done(false)
		}
	default:
		b.record(done, false)
	}
	return result, err
}

func (b *Breaker) record(done func(success bool), success bool) {
	b.mu.Lock()
	if success {
		b.consecutiveFailures = 0
	} else {
		b.consecutiveFailures++
	}
	b.mu.Unlock()
	done(success)
}

// State evaluates the current state; an expired open circuit reports half_open.
func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

func (b *Breaker) Snapshot() Snapshot {
	state := b.State()

	b.mu.Lock()
	failures, lastFailureAt := b.consecutiveFailures, b.lastFailureAt
	b.mu.Unlock()

	return Snapshot{
		Name:                b.name,
		State:               state,
		ConsecutiveFailures: failures,
		LastFailureAt:       lastFailureAt,
	}
}
