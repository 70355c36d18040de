package aianalysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker(threshold, cooldown)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestBreakerStartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow(), "open circuit must admit no calls inside the cooldown")
	assert.Equal(t, 3, cb.ConsecutiveFailures())
}

func TestBreakerHalfOpenAdmitsExactlyOneProbe(t *testing.T) {
	cb, now := newTestBreaker(2, time.Minute)
	cb.RecordFailure()
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	*now = now.Add(61 * time.Second)
	assert.True(t, cb.Allow(), "cooldown elapsed: one probe admitted")
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.False(t, cb.Allow(), "only one probe may be in flight")
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	cb, now := newTestBreaker(2, time.Minute)
	cb.RecordFailure()
	cb.RecordFailure()

	*now = now.Add(2 * time.Minute)
	require.True(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.ConsecutiveFailures())
	assert.True(t, cb.Allow())
}

func TestBreakerProbeFailureReopensAndResetsCooldown(t *testing.T) {
	cb, now := newTestBreaker(2, time.Minute)
	cb.RecordFailure()
	cb.RecordFailure()

	*now = now.Add(2 * time.Minute)
	require.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	// The cooldown restarts from the probe failure, not the original trip.
	*now = now.Add(30 * time.Second)
	assert.False(t, cb.Allow())

	*now = now.Add(31 * time.Second)
	assert.True(t, cb.Allow())
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State(), "streak was broken, threshold not reached")
}

func TestBreakerStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
}
