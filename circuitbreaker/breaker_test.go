package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend error")

func failing() (any, error) { return nil, errBackend }

func succeeding() (any, error) { return "ok", nil }

func testBreaker(openDuration time.Duration) *Breaker {
	return newBreaker("matching-service", Settings{FailureThreshold: 5, OpenDuration: openDuration}, nil)
}

func trip(t *testing.T, b *Breaker) {
	t.Helper()
	for i := 0; i < 5; i++ {
		_, err := b.Execute(failing, nil)
		require.ErrorIs(t, err, errBackend)
	}
	require.Equal(t, StateOpen, b.State())
}

func TestBreakerStartsClosed(t *testing.T) {
	b := testBreaker(time.Second)

	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Zero(t, snap.ConsecutiveFailures)
	assert.True(t, snap.LastFailureAt.IsZero())
}

func TestBreakerOpensAfterFiveFailures(t *testing.T) {
	b := testBreaker(time.Minute)

	for i := 0; i < 4; i++ {
		_, _ = b.Execute(failing, nil)
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, uint32(4), b.Snapshot().ConsecutiveFailures)

	_, _ = b.Execute(failing, nil)
	snap := b.Snapshot()
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, uint32(5), snap.ConsecutiveFailures, "the count survives the transition")
	assert.False(t, snap.LastFailureAt.IsZero())
}

func TestOpenBreakerNeverInvokesOperation(t *testing.T) {
	b := testBreaker(time.Minute)
	trip(t, b)

	var invoked atomic.Int32
	start := time.Now()
	for i := 0; i < 10; i++ {
		_, err := b.Execute(func() (any, error) {
			invoked.Add(1)
			time.Sleep(time.Second)
			return nil, nil
		}, nil)
		assert.ErrorIs(t, err, ErrOpen)
	}

	assert.Zero(t, invoked.Load())
	assert.Less(t, time.Since(start), 100*time.Millisecond, "short-circuit should be immediate")
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	b := testBreaker(time.Minute)

	for i := 0; i < 4; i++ {
		_, _ = b.Execute(failing, nil)
	}
	result, err := b.Execute(succeeding, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Zero(t, b.Snapshot().ConsecutiveFailures)

	// Four more failures still do not trip: the count restarted.
	for i := 0; i < 4; i++ {
		_, _ = b.Execute(failing, nil)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenTrialSuccessCloses(t *testing.T) {
	b := testBreaker(50 * time.Millisecond)
	trip(t, b)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	result, err := b.Execute(succeeding, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Zero(t, snap.ConsecutiveFailures)
}

func TestHalfOpenTrialFailureReopens(t *testing.T) {
	b := testBreaker(50 * time.Millisecond)
	trip(t, b)
	firstOpen := b.Snapshot().LastFailureAt

	time.Sleep(80 * time.Millisecond)
	_, err := b.Execute(failing, nil)
	require.ErrorIs(t, err, errBackend)

	snap := b.Snapshot()
	assert.Equal(t, StateOpen, snap.State)
	assert.Equal(t, uint32(6), snap.ConsecutiveFailures)
	assert.True(t, snap.LastFailureAt.After(firstOpen), "open window must restart")

	var invoked bool
	_, err = b.Execute(func() (any, error) {
		invoked = true
		return nil, nil
	}, nil)
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, invoked)
}

func TestHalfOpenAllowsSingleTrial(t *testing.T) {
	b := testBreaker(50 * time.Millisecond)
	trip(t, b)
	time.Sleep(80 * time.Millisecond)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := b.Execute(func() (any, error) {
			close(started)
			<-release
			return "trial", nil
		}, nil)
		done <- err
	}()
	<-started

	var invoked bool
	_, err := b.Execute(func() (any, error) {
		invoked = true
		return nil, nil
	}, nil)
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, invoked, "second call during the trial must short-circuit")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
}

func TestFallbackOnFailure(t *testing.T) {
	b := testBreaker(time.Minute)

	var cause error
	result, err := b.Execute(failing, func(c error) (any, error) {
		cause = c
		return "cached profile", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "cached profile", result)
	assert.ErrorIs(t, cause, errBackend)
	assert.Equal(t, uint32(1), b.Snapshot().ConsecutiveFailures, "fallback does not hide the failure")
}

func TestFallbackOnShortCircuit(t *testing.T) {
	b := testBreaker(time.Minute)
	trip(t, b)

	result, err := b.Execute(succeeding, func(cause error) (any, error) {
		assert.ErrorIs(t, cause, ErrOpen)
		return "default", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "default", result)
}

func TestFallbackError(t *testing.T) {
	b := testBreaker(time.Minute)
	trip(t, b)
	errCache := errors.New("cache miss")

	_, err := b.Execute(succeeding, func(error) (any, error) { return nil, errCache })

	var fbErr *FallbackError
	require.ErrorAs(t, err, &fbErr)
	assert.Equal(t, "matching-service", fbErr.Service)
	assert.ErrorIs(t, fbErr.Cause, ErrOpen)
	assert.ErrorIs(t, err, errCache)
}

func TestConcurrentFailuresAreNotLost(t *testing.T) {
	b := newBreaker("user-service", Settings{FailureThreshold: 100, OpenDuration: time.Minute}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 99; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = b.Execute(failing, nil)
		}()
	}
	wg.Wait()

	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, uint32(99), snap.ConsecutiveFailures)

	_, _ = b.Execute(failing, nil)
	assert.Equal(t, StateOpen, b.State())
}

func TestSettingsDefaults(t *testing.T) {
	s := Settings{}.withDefaults()
	assert.Equal(t, DefaultSettings(), s)
	assert.Equal(t, uint32(5), s.FailureThreshold)
	assert.Equal(t, 60*time.Second, s.OpenDuration)
}

func cancelledOp(ctx context.Context, cancel context.CancelFunc) func() (any, error) {
	return func() (any, error) {
		cancel()
		return nil, ctx.Err()
	}
}

func TestCallerCancellationIsNotCounted(t *testing.T) {
	b := testBreaker(time.Minute)
	_, _ = b.Execute(failing, nil)

	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		_, err := b.ExecuteContext(ctx, cancelledOp(ctx, cancel), nil)
		require.ErrorIs(t, err, context.Canceled)
	}

	snap := b.Snapshot()
	assert.Equal(t, StateClosed, snap.State)
	assert.Equal(t, uint32(1), snap.ConsecutiveFailures, "the streak is neither extended nor reset")
}

func TestFailureWithLiveContextIsCounted(t *testing.T) {
	b := testBreaker(time.Minute)

	for i := 0; i < 5; i++ {
		_, _ = b.ExecuteContext(context.Background(), failing, nil)
	}
	assert.Equal(t, StateOpen, b.State())
}

func TestAbandonedHalfOpenTrialReopens(t *testing.T) {
	b := testBreaker(50 * time.Millisecond)
	trip(t, b)
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	ctx, cancel := context.WithCancel(context.Background())
	_, err := b.ExecuteContext(ctx, cancelledOp(ctx, cancel), nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, uint32(5), b.Snapshot().ConsecutiveFailures)

	// The trial slot was released: the next window admits a trial again.
	time.Sleep(80 * time.Millisecond)
	result, err := b.Execute(succeeding, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, StateClosed, b.State())
}
