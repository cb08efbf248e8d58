package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_TripsAfterFailureThreshold(t *testing.T) {
	b := New("llm", Config{FailureThreshold: 3, SuccessThreshold: 2, OpenTimeout: 50 * time.Millisecond}, zerolog.Nop())

	for i := 0; i < 2; i++ {
		require.True(t, b.Allow())
		b.RecordFailure()
	}
	assert.Equal(t, StateClosed, b.State())

	require.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	assert.False(t, b.Allow(), "open breaker must fail fast")
}

func TestBreaker_HalfOpenThenCloses(t *testing.T) {
	b := New("llm", Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: 10 * time.Millisecond}, zerolog.Nop())

	require.True(t, b.Allow())
	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())

	time.Sleep(15 * time.Millisecond)

	require.True(t, b.Allow(), "single probe allowed after timeout")
	assert.False(t, b.Allow(), "second concurrent probe blocked")
	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, b.State(), "one success is not enough to close")

	require.True(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())

	stats := b.Stats()
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, int64(1), stats.TotalTrips)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New("llm", Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: 10 * time.Millisecond}, zerolog.Nop())

	require.True(t, b.Allow())
	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)

	require.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestExecute_ReturnsCircuitOpenWithoutRunningOperation(t *testing.T) {
	b := New("llm", Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Minute}, zerolog.Nop())
	require.Error(t, b.Execute(func() error { return errors.New("boom") }))
	require.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.True(t, IsCircuitOpen(err))
	assert.False(t, called)
}
