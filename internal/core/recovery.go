package core

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"toolgate/internal/logging"
)

// RecoveryStrategy names one way of getting past a failure.
type RecoveryStrategy string

const (
	StrategyRetry       RecoveryStrategy = "retry"
	StrategyFailover    RecoveryStrategy = "failover"
	StrategyRestart     RecoveryStrategy = "restart"
	StrategyReconfigure RecoveryStrategy = "reconfigure"
	StrategyFallback    RecoveryStrategy = "fallback"
)

// staticOrder is the tiebreak and cold-start ordering.
var staticOrder = []RecoveryStrategy{
	StrategyRetry,
	StrategyFailover,
	StrategyRestart,
	StrategyReconfigure,
	StrategyFallback,
}

var staticRank = func() map[RecoveryStrategy]int {
	m := make(map[RecoveryStrategy]int, len(staticOrder))
	for i, s := range staticOrder {
		m[s] = i
	}
	return m
}()

// =============================================================================
// STRATEGY STATISTICS
// =============================================================================

// StrategyStats tracks an exponential moving average of success per
// (error category, strategy). Unseen pairs start at a neutral 0.5 so a new
// strategy is neither favored nor punished.
type StrategyStats struct {
	mu    sync.Mutex
	rates map[string]float64
	alpha float64
}

const (
	statsNeutral = 0.5
	statsAlpha   = 0.3
)

// NewStrategyStats creates empty statistics.
func NewStrategyStats() *StrategyStats {
	return &StrategyStats{rates: make(map[string]float64), alpha: statsAlpha}
}

func statsKey(cat ErrorCategory, strat RecoveryStrategy) string {
	return string(cat) + ":" + string(strat)
}

// Rate returns the current success rate for a pair.
func (s *StrategyStats) Rate(cat ErrorCategory, strat RecoveryStrategy) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rates[statsKey(cat, strat)]; ok {
		return r
	}
	return statsNeutral
}

// Update folds one outcome into the moving average.
func (s *StrategyStats) Update(cat ErrorCategory, strat RecoveryStrategy, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := statsKey(cat, strat)
	prev, ok := s.rates[key]
	if !ok {
		prev = statsNeutral
	}
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	s.rates[key] = prev + s.alpha*(outcome-prev)
}

// Snapshot copies the rates map, keyed "category:strategy". Used by the
// store to persist rates across restarts.
func (s *StrategyStats) Snapshot() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.rates))
	for k, v := range s.rates {
		out[k] = v
	}
	return out
}

// Restore loads previously persisted rates.
func (s *StrategyStats) Restore(rates map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range rates {
		s.rates[k] = v
	}
}

// =============================================================================
// RECOVERY MANAGER
// =============================================================================

// StrategyHook implements a non-retry strategy for the surrounding system:
// failover to an alternate tool, restart a resource, reconfigure, or produce
// a degraded fallback result. A hook returns nil when it recovered.
type StrategyHook func(ctx context.Context, rec *ErrorRecord) error

// RecoveryManager decides how to get past a failure. Strategies are ranked
// by their success rate for the failure's category, static order breaking
// ties, and attempted in that order until one recovers.
type RecoveryManager struct {
	stats        *StrategyStats
	breakers     *BreakerSet
	retryCeiling int
	backoffBase  time.Duration
	clock        Clock

	mu    sync.RWMutex
	hooks map[RecoveryStrategy]StrategyHook
}

// NewRecoveryManager builds a recovery manager sharing the pipeline's
// breaker set.
func NewRecoveryManager(stats *StrategyStats, breakers *BreakerSet, retryCeiling int, backoffBase time.Duration, clock Clock) *RecoveryManager {
	if clock == nil {
		clock = RealClock{}
	}
	if stats == nil {
		stats = NewStrategyStats()
	}
	return &RecoveryManager{
		stats:        stats,
		breakers:     breakers,
		retryCeiling: retryCeiling,
		backoffBase:  backoffBase,
		clock:        clock,
		hooks:        make(map[RecoveryStrategy]StrategyHook),
	}
}

// Stats exposes the strategy statistics for persistence.
func (m *RecoveryManager) Stats() *StrategyStats { return m.stats }

// RegisterHook installs the implementation for a non-retry strategy.
// Strategies without a hook are skipped during ranking.
func (m *RecoveryManager) RegisterHook(strat RecoveryStrategy, hook StrategyHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[strat] = hook
}

func (m *RecoveryManager) hook(strat RecoveryStrategy) StrategyHook {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hooks[strat]
}

// Ranked returns the strategies to try for a category, best first.
func (m *RecoveryManager) Ranked(cat ErrorCategory) []RecoveryStrategy {
	out := make([]RecoveryStrategy, len(staticOrder))
	copy(out, staticOrder)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := m.stats.Rate(cat, out[i]), m.stats.Rate(cat, out[j])
		if ri != rj {
			return ri > rj
		}
		return staticRank[out[i]] < staticRank[out[j]]
	})
	return out
}

// HandleFailure attempts to recover from a recorded failure. op re-runs the
// original invocation and is what the retry strategy drives; the other
// strategies run through their registered hooks. Returns nil once any
// strategy recovers, otherwise the original error.
//
// Validation and security failures are never retried: re-running the same
// invalid input cannot succeed and retrying a blocked request would defeat
// the block.
func (m *RecoveryManager) HandleFailure(ctx context.Context, rec *ErrorRecord, op func(context.Context) error) error {
	if rec.Category == CategoryValidation || rec.Category == CategorySecurity {
		return rec.Err
	}

	for _, strat := range m.Ranked(rec.Category) {
		var err error
		switch strat {
		case StrategyRetry:
			if op == nil {
				continue
			}
			err = m.retry(ctx, rec, op)
		default:
			hook := m.hook(strat)
			if hook == nil {
				continue
			}
			err = hook(ctx, rec)
			m.stats.Update(rec.Category, strat, err == nil)
			logging.AuditWithRequest(rec.RequestID).RecoveryAttempt(string(strat), string(rec.Category), 1, err == nil, errString(err))
		}

		if err == nil {
			logging.Recovery("Recovered from %s via %s", rec.Category, strat)
			return nil
		}
		logging.RecoveryDebug("Strategy %s failed for %s: %v", strat, rec.Category, err)
	}

	return rec.Err
}

// retry re-runs op with exponential backoff and jitter up to the ceiling.
// Exhausting the ceiling trips the breaker for the failing pair.
func (m *RecoveryManager) retry(ctx context.Context, rec *ErrorRecord, op func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= m.retryCeiling; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.clock.Sleep(m.backoffDelay(attempt))

		lastErr = op(ctx)
		success := lastErr == nil
		m.stats.Update(rec.Category, StrategyRetry, success)
		logging.AuditWithRequest(rec.RequestID).RecoveryAttempt(string(StrategyRetry), string(rec.Category), attempt, success, errString(lastErr))
		if success {
			return nil
		}
	}

	if m.breakers != nil {
		m.breakers.Trip(rec.Tool, rec.Resource)
	}
	return fmt.Errorf("retry ceiling %d exhausted: %w", m.retryCeiling, lastErr)
}

// backoffDelay doubles per attempt with up to 50% jitter.
func (m *RecoveryManager) backoffDelay(attempt int) time.Duration {
	delay := m.backoffBase << (attempt - 1)
	if delay <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay + jitter
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
