package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// validationCache memoizes clean validation results for a short TTL.
// Only fully-clean results are stored: anything carrying a security finding
// is recomputed on every call, so the cache is never authoritative for a
// security decision. Concurrent writers race benignly; last writer wins.
type validationCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	clock   Clock
	entries map[string]cacheEntry
}

type cacheEntry struct {
	result  *ValidationResult
	expires time.Time
}

func newValidationCache(ttl time.Duration, clock Clock) *validationCache {
	if clock == nil {
		clock = RealClock{}
	}
	return &validationCache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]cacheEntry),
	}
}

// enabled reports whether caching is on at all.
func (c *validationCache) enabled() bool {
	return c != nil && c.ttl > 0
}

func (c *validationCache) get(key string) (*ValidationResult, bool) {
	if !c.enabled() {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.clock.Now().After(entry.expires) {
		return nil, false
	}
	return entry.result, true
}

func (c *validationCache) put(key string, result *ValidationResult) {
	if !c.enabled() {
		return
	}
	// Only clean results are cacheable.
	if !result.Valid || len(result.Issues) > 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{result: result, expires: c.clock.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// cacheKey builds a deterministic key from tool name and normalized
// parameters. Raw values are used: the key must reflect what was submitted,
// not what sanitization produced.
func cacheKey(tool string, params ParameterSet) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(tool)
	for _, name := range names {
		p := params[name]
		fmt.Fprintf(&b, "|%s=%v@%s", name, p.Raw, p.Source)
	}
	return b.String()
}
