package honeyguard

import (
	"fmt"
	"sync"
	"time"
)

// InMemoryActivityStore implements ActivityStore with in-memory storage.
// Used in tests and when no database path is configured.
type InMemoryActivityStore struct {
	mu       sync.RWMutex
	nextID   int64
	activity []ActivityRecord
	alerts   []Alert
}

func NewInMemoryActivityStore() *InMemoryActivityStore {
	return &InMemoryActivityStore{}
}

func (s *InMemoryActivityStore) AppendActivity(ev Event, failed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	at := ev.ObservedAt
	if at.IsZero() {
		at = time.Now()
	}
	s.activity = append(s.activity, ActivityRecord{
		ID:         s.nextID,
		Type:       ev.Type,
		Identity:   ev.Identity,
		SecretMask: MaskSecret(ev.Secret),
		IP:         ev.IP,
		ClientSig:  ev.ClientSig,
		Provider:   ev.Provider,
		Payload:    ev.Payload,
		Failed:     failed,
		At:         at,
	})
	return nil
}

func (s *InMemoryActivityStore) AppendAlert(alert *Alert) error {
	if alert == nil {
		return fmt.Errorf("alert is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, *alert)
	return nil
}

func (s *InMemoryActivityStore) FailedAttempts(key string, keyType KeyType, since time.Duration) ([]AttemptRecord, error) {
	cutoff := time.Now().Add(-since)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []AttemptRecord
	for _, rec := range s.activity {
		if !rec.Failed || rec.At.Before(cutoff) {
			continue
		}
		if keyType == KeyIdentity && rec.Identity != key {
			continue
		}
		if keyType == KeyIP && rec.IP != key {
			continue
		}
		records = append(records, AttemptRecord{IP: rec.IP, Identity: rec.Identity, At: rec.At})
	}
	return records, nil
}

func (s *InMemoryActivityStore) RecentActivity(limit int) ([]ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.activity) {
		limit = len(s.activity)
	}
	out := make([]ActivityRecord, limit)
	// Newest first.
	for i := 0; i < limit; i++ {
		out[i] = s.activity[len(s.activity)-1-i]
	}
	return out, nil
}

func (s *InMemoryActivityStore) RecentAlerts(limit int) ([]Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.alerts) {
		limit = len(s.alerts)
	}
	out := make([]Alert, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.alerts[len(s.alerts)-1-i]
	}
	return out, nil
}

func (s *InMemoryActivityStore) ResolveAlert(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Resolved = true
			return nil
		}
	}
	return fmt.Errorf("alert %s not found", id)
}

func (s *InMemoryActivityStore) Stats() (StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := StoreStats{
		TotalAttempts: len(s.activity),
		TotalAlerts:   len(s.alerts),
	}
	ips := make(map[string]struct{})
	for _, rec := range s.activity {
		if rec.Failed {
			stats.FailedAttempts++
		}
		if rec.IP != "" {
			ips[rec.IP] = struct{}{}
		}
	}
	for _, alert := range s.alerts {
		if !alert.Resolved {
			stats.UnresolvedAlerts++
		}
	}
	stats.DistinctIPs = len(ips)
	return stats, nil
}

func (s *InMemoryActivityStore) HealthCheck() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_ = len(s.activity)
	return nil
}
