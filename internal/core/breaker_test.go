package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreakers(clock Clock) *BreakerSet {
	return NewBreakerSet(3, 30*time.Second, 2*time.Minute, time.Minute, clock)
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	b := newTestBreakers(clock)

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow("shell", "subprocess"))
		b.RecordFailure("shell", "subprocess")
	}
	assert.Equal(t, StateClosed, b.State("shell", "subprocess"))

	b.RecordFailure("shell", "subprocess")
	assert.Equal(t, StateOpen, b.State("shell", "subprocess"))

	// Open breaker fails fast without touching the tool.
	err := b.Allow("shell", "subprocess")
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	b := newTestBreakers(clock)

	b.RecordFailure("shell", "subprocess")
	b.RecordFailure("shell", "subprocess")
	b.RecordSuccess("shell", "subprocess")
	b.RecordFailure("shell", "subprocess")
	b.RecordFailure("shell", "subprocess")

	assert.Equal(t, StateClosed, b.State("shell", "subprocess"), "non-consecutive failures never open")
}

func TestBreakerWindowExpiry(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	b := newTestBreakers(clock)

	b.RecordFailure("shell", "subprocess")
	b.RecordFailure("shell", "subprocess")
	clock.Advance(2 * time.Minute) // outside the rolling window
	b.RecordFailure("shell", "subprocess")

	assert.Equal(t, StateClosed, b.State("shell", "subprocess"))
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	b := newTestBreakers(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure("shell", "subprocess")
	}
	require.Equal(t, StateOpen, b.State("shell", "subprocess"))

	// Before cool-down: rejected.
	assert.ErrorIs(t, b.Allow("shell", "subprocess"), ErrCircuitOpen)

	clock.Advance(30 * time.Second)

	// Exactly one probe admitted.
	require.NoError(t, b.Allow("shell", "subprocess"))
	assert.Equal(t, StateHalfOpen, b.State("shell", "subprocess"))
	assert.ErrorIs(t, b.Allow("shell", "subprocess"), ErrCircuitOpen)

	// Probe success closes.
	b.RecordSuccess("shell", "subprocess")
	assert.Equal(t, StateClosed, b.State("shell", "subprocess"))
	assert.NoError(t, b.Allow("shell", "subprocess"))
}

func TestBreakerProbeFailureDoublesCoolDown(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	b := newTestBreakers(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure("shell", "subprocess")
	}

	// First probe fails: cool-down doubles to 60s.
	clock.Advance(30 * time.Second)
	require.NoError(t, b.Allow("shell", "subprocess"))
	b.RecordFailure("shell", "subprocess")
	assert.Equal(t, StateOpen, b.State("shell", "subprocess"))

	clock.Advance(59 * time.Second)
	assert.ErrorIs(t, b.Allow("shell", "subprocess"), ErrCircuitOpen, "still inside doubled cool-down")
	clock.Advance(time.Second)
	require.NoError(t, b.Allow("shell", "subprocess"))

	// Second probe failure doubles again to 120s, which is the cap.
	b.RecordFailure("shell", "subprocess")
	clock.Advance(2 * time.Minute)
	require.NoError(t, b.Allow("shell", "subprocess"))

	// Third failure would double past the cap; stays at 120s.
	b.RecordFailure("shell", "subprocess")
	clock.Advance(2 * time.Minute)
	assert.NoError(t, b.Allow("shell", "subprocess"))

	// A successful probe resets the cool-down to its initial value.
	b.RecordSuccess("shell", "subprocess")
	for i := 0; i < 3; i++ {
		b.RecordFailure("shell", "subprocess")
	}
	clock.Advance(30 * time.Second)
	assert.NoError(t, b.Allow("shell", "subprocess"))
}

func TestBreakerKeysIndependent(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	b := newTestBreakers(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure("shell", "subprocess")
	}
	assert.Equal(t, StateOpen, b.State("shell", "subprocess"))
	assert.NoError(t, b.Allow("file_search", "filesystem"))
	assert.NoError(t, b.Allow("shell", "other-resource"))
}

func TestBreakerTrip(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	b := newTestBreakers(clock)

	b.Trip("task", "worker")
	assert.Equal(t, StateOpen, b.State("task", "worker"))
	assert.ErrorIs(t, b.Allow("task", "worker"), ErrCircuitOpen)

	states := b.States()
	assert.Equal(t, StateOpen, states["task/worker"])
}

func TestBreakerConcurrentProbeAdmitsOne(t *testing.T) {
	clock := NewFakeClock(time.Unix(1000, 0))
	b := newTestBreakers(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure("shell", "subprocess")
	}
	clock.Advance(30 * time.Second)

	const callers = 16
	var admitted int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Allow("shell", "subprocess") == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted, "exactly one probe while half-open")
}
