package honeyguard

import (
	"fmt"
	"sync"
	"time"
)

// WindowStats is the result of querying one key's rolling window.
type WindowStats struct {
	Count              int
	DistinctIdentities int
}

type windowEntry struct {
	at       time.Time
	failed   bool
	identity string
}

// windowCounter holds the rolling state for one key. All access goes through
// its own mutex so concurrent events for the same key serialize their
// read-modify-write.
type windowCounter struct {
	mu       sync.Mutex
	entries  []windowEntry
	lastSeen time.Time
}

// record appends an observation and trims entries older than the retention
// horizon. Trimming to rule windows shorter than the horizon happens lazily
// at query time.
func (c *windowCounter) record(e windowEntry, horizon time.Duration) {
	c.entries = append(c.entries, e)
	if e.at.After(c.lastSeen) {
		c.lastSeen = e.at
	}
	cutoff := e.at.Add(-horizon)
	idx := 0
	for idx < len(c.entries) && c.entries[idx].at.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		c.entries = c.entries[idx:]
	}
}

// stats counts failed entries within the window ending at now. Successful
// entries are bookkeeping only and never contribute to counts.
func (c *windowCounter) stats(now time.Time, within time.Duration) WindowStats {
	cutoff := now.Add(-within)
	identities := make(map[string]struct{})
	var count int
	for _, e := range c.entries {
		if !e.failed || e.at.Before(cutoff) || e.at.After(now) {
			continue
		}
		count++
		if e.identity != "" {
			identities[e.identity] = struct{}{}
		}
	}
	return WindowStats{Count: count, DistinctIdentities: len(identities)}
}

// WindowStore keeps one windowCounter per key. The map lock only guards the
// map itself; per-key work happens under the counter's lock.
type WindowStore struct {
	mu       sync.RWMutex
	horizon  time.Duration
	counters map[string]*windowCounter
}

func NewWindowStore(horizon time.Duration) *WindowStore {
	if horizon <= 0 {
		horizon = 30 * time.Minute
	}
	return &WindowStore{
		horizon:  horizon,
		counters: make(map[string]*windowCounter),
	}
}

func (s *WindowStore) counter(key string) *windowCounter {
	s.mu.RLock()
	c, exists := s.counters[key]
	s.mu.RUnlock()
	if exists {
		return c
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, exists = s.counters[key]; exists {
		return c
	}
	c = &windowCounter{}
	s.counters[key] = c
	return c
}

// Query prunes lazily and returns counts for the given window. Windows longer
// than the store horizon are capped at the horizon.
func (s *WindowStore) Query(key string, now time.Time, within time.Duration) WindowStats {
	s.mu.RLock()
	c, exists := s.counters[key]
	s.mu.RUnlock()
	if !exists {
		return WindowStats{}
	}
	if within > s.horizon {
		within = s.horizon
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats(now, within)
}

// Evict drops keys with no activity inside the horizon. Required to keep
// memory bounded under sustained distinct-IP scanning.
func (s *WindowStore) Evict(now time.Time) int {
	cutoff := now.Add(-s.horizon)
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for key, c := range s.counters {
		c.mu.Lock()
		stale := c.lastSeen.Before(cutoff)
		c.mu.Unlock()
		if stale {
			delete(s.counters, key)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of live keys.
func (s *WindowStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.counters)
}

// BehaviorThresholds tune the campaign detection rules.
type BehaviorThresholds struct {
	StuffingAttempts   int           `json:"stuffingAttempts"`
	StuffingIdentities int           `json:"stuffingIdentities"`
	StuffingWindow     time.Duration `json:"-"`
	SprayingAttempts   int           `json:"sprayingAttempts"`
	SprayingWindow     time.Duration `json:"-"`
	BruteForceAttempts int           `json:"bruteForceAttempts"`
	BruteForceWindow   time.Duration `json:"-"`
}

func DefaultBehaviorThresholds() BehaviorThresholds {
	return BehaviorThresholds{
		StuffingAttempts:   5,
		StuffingIdentities: 3,
		StuffingWindow:     15 * time.Minute,
		SprayingAttempts:   5,
		SprayingWindow:     30 * time.Minute,
		BruteForceAttempts: 10,
		BruteForceWindow:   15 * time.Minute,
	}
}

// longestWindow bounds retention and key eviction.
func (t BehaviorThresholds) longestWindow() time.Duration {
	longest := t.StuffingWindow
	if t.SprayingWindow > longest {
		longest = t.SprayingWindow
	}
	if t.BruteForceWindow > longest {
		longest = t.BruteForceWindow
	}
	if longest <= 0 {
		longest = 30 * time.Minute
	}
	return longest
}

// Aggregator detects multi-event attack campaigns over sliding windows, one
// window per source IP and one per target identity.
type Aggregator struct {
	mu         sync.RWMutex
	thresholds BehaviorThresholds
	ips        *WindowStore
	identities *WindowStore
}

func NewAggregator(thresholds BehaviorThresholds) *Aggregator {
	horizon := thresholds.longestWindow()
	return &Aggregator{
		thresholds: thresholds,
		ips:        NewWindowStore(horizon),
		identities: NewWindowStore(horizon),
	}
}

// SetThresholds swaps the rule tuning; live windows are kept.
func (a *Aggregator) SetThresholds(t BehaviorThresholds) {
	a.mu.Lock()
	a.thresholds = t
	a.mu.Unlock()
}

// Record stores an observation without evaluating rules. Used for warm start.
func (a *Aggregator) Record(ip, identity string, failed bool, at time.Time) {
	a.mu.RLock()
	t := a.thresholds
	a.mu.RUnlock()
	a.observe(ip, identity, failed, at, t)
}

// Query returns the rolling stats for a key on the given axis.
func (a *Aggregator) Query(key string, keyType KeyType, now time.Time, within time.Duration) WindowStats {
	if keyType == KeyIdentity {
		return a.identities.Query(key, now, within)
	}
	return a.ips.Query(key, now, within)
}

type behaviorStats struct {
	stuffing WindowStats
	brute    WindowStats
	spray    WindowStats
}

// Observe records the event and evaluates the behavioral rules. The counts
// are computed under the same per-key lock that recorded the event, so the
// triggering event counts toward its own threshold: the Nth attempt fires at
// count == N.
func (a *Aggregator) Observe(ip, identity string, failed bool, at time.Time) []Finding {
	a.mu.RLock()
	t := a.thresholds
	a.mu.RUnlock()

	stats := a.observe(ip, identity, failed, at, t)

	var findings []Finding
	if ip != "" && stats.stuffing.Count >= t.StuffingAttempts && stats.stuffing.DistinctIdentities >= t.StuffingIdentities {
		findings = append(findings, Finding{
			Kind:     ThreatCredentialStuffing,
			Severity: SeverityHigh,
			Reason:   fmt.Sprintf("%d failed attempts with %d different identities from IP %s", stats.stuffing.Count, stats.stuffing.DistinctIdentities, ip),
		})
	}
	if identity != "" && stats.spray.Count >= t.SprayingAttempts {
		findings = append(findings, Finding{
			Kind:     ThreatPasswordSpraying,
			Severity: SeverityHigh,
			Reason:   fmt.Sprintf("%d failed attempts on identity %s", stats.spray.Count, identity),
		})
	}
	// Evaluated independently of credential stuffing: both may fire on the
	// same event when both thresholds are met.
	if ip != "" && stats.brute.Count >= t.BruteForceAttempts {
		findings = append(findings, Finding{
			Kind:     ThreatBruteForce,
			Severity: SeverityHigh,
			Reason:   fmt.Sprintf("%d rapid failed attempts from IP %s", stats.brute.Count, ip),
		})
	}
	return findings
}

func (a *Aggregator) observe(ip, identity string, failed bool, at time.Time, t BehaviorThresholds) behaviorStats {
	var stats behaviorStats
	if ip != "" {
		c := a.ips.counter(ip)
		c.mu.Lock()
		c.record(windowEntry{at: at, failed: failed, identity: identity}, a.ips.horizon)
		stats.stuffing = c.stats(at, t.StuffingWindow)
		stats.brute = c.stats(at, t.BruteForceWindow)
		c.mu.Unlock()
	}
	if identity != "" {
		c := a.identities.counter(identity)
		c.mu.Lock()
		c.record(windowEntry{at: at, failed: failed, identity: identity}, a.identities.horizon)
		stats.spray = c.stats(at, t.SprayingWindow)
		c.mu.Unlock()
	}
	return stats
}

// Evict drops stale keys on both axes and returns how many were removed.
func (a *Aggregator) Evict(now time.Time) int {
	return a.ips.Evict(now) + a.identities.Evict(now)
}
