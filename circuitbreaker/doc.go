// Package circuitbreaker isolates a failing backend behind a per-service
// three-state machine:
//
//	closed ──(FailureThreshold consecutive failures)──► open
//	open ──(OpenDuration elapsed, next call)──► half_open (one trial call)
//	half_open ──(trial succeeds)──► closed
//	half_open ──(trial fails)──► open (timer restarts)
//
// While open, Execute never invokes the wrapped operation; it short-circuits
// with ErrOpen or the caller's fallback result. An operation that fails
// because the caller's context is done says nothing about the backend and is
// not counted (see ExecuteContext).
//
// The state machine itself is github.com/sony/gobreaker; Manager owns one
// Breaker per logical service name and creates them on first use.
package circuitbreaker
