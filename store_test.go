package honeyguard

import (
	"testing"
	"time"
)

func TestInMemoryStoreFailedAttempts(t *testing.T) {
	store := NewInMemoryActivityStore()
	now := time.Now()

	events := []struct {
		ip       string
		identity string
		failed   bool
		at       time.Time
	}{
		{"203.0.113.7", "a@example.com", true, now.Add(-2 * time.Minute)},
		{"203.0.113.7", "b@example.com", true, now.Add(-time.Minute)},
		{"203.0.113.7", "c@example.com", false, now},
		{"198.51.100.4", "a@example.com", true, now},
		{"203.0.113.7", "old@example.com", true, now.Add(-time.Hour)},
	}
	for _, e := range events {
		ev := Event{Type: EventLoginAttempt, Identity: e.identity, IP: e.ip, ObservedAt: e.at}
		if err := store.AppendActivity(ev, e.failed); err != nil {
			t.Fatal(err)
		}
	}

	byIP, err := store.FailedAttempts("203.0.113.7", KeyIP, 15*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(byIP) != 2 {
		t.Fatalf("failed attempts by ip = %d, want 2", len(byIP))
	}

	byIdentity, err := store.FailedAttempts("a@example.com", KeyIdentity, 15*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(byIdentity) != 2 {
		t.Fatalf("failed attempts by identity = %d, want 2", len(byIdentity))
	}
}

func TestInMemoryStoreRecentNewestFirst(t *testing.T) {
	store := NewInMemoryActivityStore()
	base := time.Now()
	for i := 0; i < 3; i++ {
		ev := Event{Type: EventPathProbe, Payload: string(rune('a' + i)), ObservedAt: base.Add(time.Duration(i) * time.Second)}
		if err := store.AppendActivity(ev, true); err != nil {
			t.Fatal(err)
		}
	}

	records, err := store.RecentActivity(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].Payload != "c" || records[1].Payload != "b" {
		t.Fatalf("order = %q, %q, want newest first", records[0].Payload, records[1].Payload)
	}
}

func TestInMemoryStoreResolveAndStats(t *testing.T) {
	store := NewInMemoryActivityStore()

	if err := store.AppendAlert(&Alert{ID: "a-1", Severity: SeverityHigh}); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendAlert(&Alert{ID: "a-2", Severity: SeverityMedium}); err != nil {
		t.Fatal(err)
	}
	if err := store.ResolveAlert("a-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.ResolveAlert("missing"); err == nil {
		t.Fatal("resolving an unknown alert must fail")
	}

	ev := Event{Type: EventLoginAttempt, Identity: "a@example.com", IP: "203.0.113.7"}
	if err := store.AppendActivity(ev, true); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalAlerts != 2 || stats.UnresolvedAlerts != 1 {
		t.Fatalf("alert stats = %+v", stats)
	}
	if stats.TotalAttempts != 1 || stats.FailedAttempts != 1 || stats.DistinctIPs != 1 {
		t.Fatalf("activity stats = %+v", stats)
	}
}
