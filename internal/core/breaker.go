package core

import (
	"fmt"
	"sync"
	"time"

	"toolgate/internal/logging"
)

// BreakerState is the circuit breaker state for one (tool, resource) pair.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// breaker holds the state machine for one key. All transitions happen under
// the mutex, so observers always see a consistent state.
type breaker struct {
	mu           sync.Mutex
	state        BreakerState
	consecutive  int
	firstFailure time.Time
	openedAt     time.Time
	coolDown     time.Duration
	probing      bool
}

// BreakerSet manages per-(tool, resource) circuit breakers.
//
// closed -> open after threshold consecutive failures inside the rolling
// window; open -> half-open after the cool-down elapses; half-open admits
// exactly one probe: success closes the breaker and resets the cool-down,
// failure reopens it with the cool-down doubled up to the cap.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*breaker

	threshold   int
	coolDown    time.Duration
	maxCoolDown time.Duration
	window      time.Duration
	clock       Clock
}

// NewBreakerSet builds a breaker set.
func NewBreakerSet(threshold int, coolDown, maxCoolDown, window time.Duration, clock Clock) *BreakerSet {
	if clock == nil {
		clock = RealClock{}
	}
	return &BreakerSet{
		breakers:    make(map[string]*breaker),
		threshold:   threshold,
		coolDown:    coolDown,
		maxCoolDown: maxCoolDown,
		window:      window,
		clock:       clock,
	}
}

func breakerKey(tool, resource string) string {
	return tool + "/" + resource
}

func (s *BreakerSet) get(tool, resource string) *breaker {
	key := breakerKey(tool, resource)
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[key]
	if !ok {
		b = &breaker{state: StateClosed, coolDown: s.coolDown}
		s.breakers[key] = b
	}
	return b
}

// Allow reports whether an invocation may proceed. When the cool-down of an
// open breaker has elapsed, the first caller through becomes the half-open
// probe; concurrent callers keep failing fast until the probe resolves.
func (s *BreakerSet) Allow(tool, resource string) error {
	b := s.get(tool, resource)
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if s.clock.Now().Sub(b.openedAt) < b.coolDown {
			logging.AuditWithRequest("").BreakerTransition(logging.AuditBreakerReject, tool, resource, b.coolDown.Milliseconds())
			return fmt.Errorf("%w: %s/%s cooling down", ErrCircuitOpen, tool, resource)
		}
		// Cool-down elapsed: this caller is the probe.
		b.state = StateHalfOpen
		b.probing = true
		logging.Recovery("Breaker half-open: %s/%s (probe admitted)", tool, resource)
		logging.Audit().BreakerTransition(logging.AuditBreakerProbe, tool, resource, b.coolDown.Milliseconds())
		return nil

	case StateHalfOpen:
		if b.probing {
			return fmt.Errorf("%w: %s/%s probe in flight", ErrCircuitOpen, tool, resource)
		}
		b.probing = true
		logging.Audit().BreakerTransition(logging.AuditBreakerProbe, tool, resource, b.coolDown.Milliseconds())
		return nil
	}
	return nil
}

// RecordSuccess notes a successful invocation. A successful half-open probe
// closes the breaker and resets the cool-down to its initial value.
func (s *BreakerSet) RecordSuccess(tool, resource string) {
	b := s.get(tool, resource)
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.consecutive = 0
	case StateHalfOpen:
		b.state = StateClosed
		b.consecutive = 0
		b.probing = false
		b.coolDown = s.coolDown
		logging.Recovery("Breaker closed: %s/%s", tool, resource)
		logging.Audit().BreakerTransition(logging.AuditBreakerClose, tool, resource, 0)
	}
}

// RecordFailure notes a failed invocation. Threshold consecutive failures
// inside the rolling window open the breaker; a failed probe reopens it with
// the cool-down doubled, capped at the configured maximum.
func (s *BreakerSet) RecordFailure(tool, resource string) {
	b := s.get(tool, resource)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := s.clock.Now()
	switch b.state {
	case StateClosed:
		if b.consecutive == 0 || now.Sub(b.firstFailure) > s.window {
			b.consecutive = 0
			b.firstFailure = now
		}
		b.consecutive++
		if b.consecutive >= s.threshold {
			b.state = StateOpen
			b.openedAt = now
			logging.Recovery("Breaker open: %s/%s after %d consecutive failures", tool, resource, b.consecutive)
			logging.Audit().BreakerTransition(logging.AuditBreakerOpen, tool, resource, b.coolDown.Milliseconds())
		}

	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = now
		b.probing = false
		b.coolDown *= 2
		if b.coolDown > s.maxCoolDown {
			b.coolDown = s.maxCoolDown
		}
		logging.Recovery("Breaker reopened: %s/%s (cool-down %s)", tool, resource, b.coolDown)
		logging.Audit().BreakerTransition(logging.AuditBreakerOpen, tool, resource, b.coolDown.Milliseconds())
	}
}

// Trip forces a breaker open, used when the retry ceiling is exhausted.
func (s *BreakerSet) Trip(tool, resource string) {
	b := s.get(tool, resource)
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		return
	}
	b.state = StateOpen
	b.openedAt = s.clock.Now()
	b.probing = false
	logging.Recovery("Breaker tripped: %s/%s", tool, resource)
	logging.Audit().BreakerTransition(logging.AuditBreakerOpen, tool, resource, b.coolDown.Milliseconds())
}

// State returns the current state for a key. Breakers that were never
// touched report closed.
func (s *BreakerSet) State(tool, resource string) BreakerState {
	s.mu.Lock()
	b, ok := s.breakers[breakerKey(tool, resource)]
	s.mu.Unlock()
	if !ok {
		return StateClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// States snapshots every breaker, keyed tool/resource.
func (s *BreakerSet) States() map[string]BreakerState {
	s.mu.Lock()
	keys := make([]string, 0, len(s.breakers))
	bs := make([]*breaker, 0, len(s.breakers))
	for k, b := range s.breakers {
		keys = append(keys, k)
		bs = append(bs, b)
	}
	s.mu.Unlock()

	out := make(map[string]BreakerState, len(keys))
	for i, b := range bs {
		b.mu.Lock()
		out[keys[i]] = b.state
		b.mu.Unlock()
	}
	return out
}
