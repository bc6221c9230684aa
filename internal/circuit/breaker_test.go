package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_String(t *testing.T) {
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "HALF_OPEN", StateHalfOpen.String())
	assert.Equal(t, "UNKNOWN", State(999).String())
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("pull-layer", Config{})

	assert.Equal(t, "pull-layer", cb.name)
	assert.Equal(t, StateClosed, cb.state)
	assert.Equal(t, uint32(1), cb.config.MaxRequests)
	assert.Equal(t, 60*time.Second, cb.config.Interval)
	assert.Equal(t, 60*time.Second, cb.config.Timeout)
	assert.NotNil(t, cb.config.ReadyToTrip)
	assert.NotNil(t, cb.config.IsSuccessful)
}

func TestExecuteWithContext_SuccessKeepsClosed(t *testing.T) {
	cb := NewCircuitBreaker("pull-layer", Config{})

	err := cb.ExecuteWithContext(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestExecuteWithContext_TripsOpenAfterReadyToTrip(t *testing.T) {
	cb := NewCircuitBreaker("pull-layer", Config{
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 2 },
	})
	boom := errors.New("object store unreachable")

	for i := 0; i < 2; i++ {
		err := cb.ExecuteWithContext(context.Background(), func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	}

	assert.Equal(t, StateOpen, cb.GetState())

	err := cb.ExecuteWithContext(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrOpenState)
}

func TestExecuteWithContext_HalfOpenClosesOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker("pull-layer", Config{
		Timeout:     time.Millisecond,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})
	boom := errors.New("object store unreachable")

	require.ErrorIs(t, cb.ExecuteWithContext(context.Background(), func(context.Context) error { return boom }), boom)
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(2 * time.Millisecond)

	err := cb.ExecuteWithContext(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestExecuteWithContext_HalfOpenReopensOnFailure(t *testing.T) {
	cb := NewCircuitBreaker("pull-layer", Config{
		Timeout:     time.Millisecond,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})
	boom := errors.New("object store unreachable")

	require.ErrorIs(t, cb.ExecuteWithContext(context.Background(), func(context.Context) error { return boom }), boom)
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(2 * time.Millisecond)

	err := cb.ExecuteWithContext(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestExecuteWithContext_HalfOpenLimitsConcurrentRequests(t *testing.T) {
	cb := NewCircuitBreaker("pull-layer", Config{
		MaxRequests: 1,
		Timeout:     time.Millisecond,
		ReadyToTrip: func(counts Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})
	boom := errors.New("object store unreachable")

	require.ErrorIs(t, cb.ExecuteWithContext(context.Background(), func(context.Context) error { return boom }), boom)
	time.Sleep(2 * time.Millisecond)

	release := make(chan struct{})
	go func() {
		_ = cb.ExecuteWithContext(context.Background(), func(context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(5 * time.Millisecond)

	err := cb.ExecuteWithContext(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrTooManyRequests)
	close(release)
}

func TestDefaultIsSuccessful(t *testing.T) {
	assert.True(t, defaultIsSuccessful(nil))
	assert.False(t, defaultIsSuccessful(errors.New("fail")))
}

func TestDefaultReadyToTrip(t *testing.T) {
	assert.False(t, defaultReadyToTrip(Counts{Requests: 19, TotalFailures: 19}))
	assert.True(t, defaultReadyToTrip(Counts{Requests: 20, TotalFailures: 10}))
}
