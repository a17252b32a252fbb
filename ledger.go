package honeyguard

import (
	"sync"
	"time"
)

const defaultLedgerTTL = 5 * time.Minute

// Ledger keeps the most recent threats per source IP for the dashboard's
// live view. Entries expire after the TTL.
type Ledger struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]*LedgerEntry
}

type LedgerEntry struct {
	IP       string    `json:"ip"`
	Identity string    `json:"identity,omitempty"`
	Threats  []Threat  `json:"threats"`
	Recorded time.Time `json:"recorded"`
}

// LedgerSummary aggregates the live entries.
type LedgerSummary struct {
	ActiveKinds  map[ThreatKind]int `json:"activeKinds"`
	ActiveIPs    int                `json:"activeIPs"`
	TotalThreats int                `json:"totalThreats"`
	LastUpdated  time.Time          `json:"lastUpdated"`
}

func NewLedger(ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = defaultLedgerTTL
	}
	return &Ledger{
		ttl:     ttl,
		entries: make(map[string]*LedgerEntry),
	}
}

func (l *Ledger) Record(ip, identity string, threats []Threat) {
	if ip == "" || len(threats) == 0 {
		return
	}
	entry := &LedgerEntry{
		IP:       ip,
		Identity: identity,
		Threats:  threats,
		Recorded: time.Now(),
	}
	l.mu.Lock()
	l.entries[ip] = entry
	l.mu.Unlock()
}

func (l *Ledger) Snapshot() []LedgerEntry {
	now := time.Now()
	l.mu.RLock()
	defer l.mu.RUnlock()
	var entries []LedgerEntry
	for _, entry := range l.entries {
		if now.Sub(entry.Recorded) > l.ttl {
			continue
		}
		entries = append(entries, *entry)
	}
	return entries
}

func (l *Ledger) Cleanup() {
	now := time.Now()
	l.mu.Lock()
	for ip, entry := range l.entries {
		if now.Sub(entry.Recorded) > l.ttl {
			delete(l.entries, ip)
		}
	}
	l.mu.Unlock()
}

func (l *Ledger) Summary() LedgerSummary {
	summary := LedgerSummary{
		ActiveKinds: make(map[ThreatKind]int),
	}
	entries := l.Snapshot()
	summary.ActiveIPs = len(entries)
	for _, entry := range entries {
		for _, threat := range entry.Threats {
			summary.ActiveKinds[threat.Kind]++
			summary.TotalThreats++
		}
		if entry.Recorded.After(summary.LastUpdated) {
			summary.LastUpdated = entry.Recorded
		}
	}
	return summary
}
