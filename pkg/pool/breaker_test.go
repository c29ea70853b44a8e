package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucp-project/ucp/pkg/ucp"
)

func TestCircuitBreaker_InitialState(t *testing.T) {
	t.Parallel()
	b := NewCircuitBreaker(5, time.Minute)
	assert.Equal(t, ucp.BreakerClosed, b.GetState())
	assert.True(t, b.CanAttempt())
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()
	b := NewCircuitBreaker(5, time.Minute)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		require.Equal(t, ucp.BreakerClosed, b.GetState())
	}
	b.RecordFailure()

	assert.Equal(t, ucp.BreakerOpen, b.GetState())
	assert.False(t, b.CanAttempt())
}

func TestCircuitBreaker_SuccessResetsCounter(t *testing.T) {
	t.Parallel()
	b := NewCircuitBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	assert.Equal(t, 0, b.GetFailureCount())

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, ucp.BreakerClosed, b.GetState())
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	t.Parallel()
	b := NewCircuitBreaker(1, 10*time.Millisecond)

	b.RecordFailure()
	require.Equal(t, ucp.BreakerOpen, b.GetState())
	assert.False(t, b.CanAttempt())

	time.Sleep(15 * time.Millisecond)

	assert.True(t, b.CanAttempt())
	assert.Equal(t, ucp.BreakerHalfOpen, b.GetState())
}

func TestCircuitBreaker_HalfOpenClosesAfterSuccesses(t *testing.T) {
	t.Parallel()
	b := NewCircuitBreaker(1, 10*time.Millisecond).WithHalfOpenMaxCalls(3)

	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	require.True(t, b.CanAttempt())

	b.RecordSuccess()
	b.RecordSuccess()
	assert.Equal(t, ucp.BreakerHalfOpen, b.GetState())
	b.RecordSuccess()
	assert.Equal(t, ucp.BreakerClosed, b.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	t.Parallel()
	b := NewCircuitBreaker(1, 10*time.Millisecond)

	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	require.True(t, b.CanAttempt())

	b.RecordFailure()
	assert.Equal(t, ucp.BreakerOpen, b.GetState())
	assert.False(t, b.CanAttempt())
}

func TestCircuitBreaker_FastFailIsBounded(t *testing.T) {
	t.Parallel()
	b := NewCircuitBreaker(1, time.Hour)
	b.RecordFailure()
	require.Equal(t, ucp.BreakerOpen, b.GetState())

	start := time.Now()
	for i := 0; i < 1000; i++ {
		b.CanAttempt()
	}
	assert.Less(t, time.Since(start), 2*time.Millisecond*1000)
}
