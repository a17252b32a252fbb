package honeyguard

import (
	"context"
	"time"
)

// KeyType selects which axis a failed-attempt query runs against.
type KeyType string

const (
	KeyIP       KeyType = "ip"
	KeyIdentity KeyType = "identity"
)

// AttemptRecord is one failed attempt returned by the persistence collaborator.
type AttemptRecord struct {
	IP       string    `json:"ip" db:"ip_address"`
	Identity string    `json:"identity" db:"email"`
	At       time.Time `json:"at" db:"created_at"`
}

// ActivityRecord is one persisted activity-log row. SecretMask holds the
// masked form of any captured secret material.
type ActivityRecord struct {
	ID         int64     `json:"id" db:"id"`
	Type       EventType `json:"type" db:"type"`
	Identity   string    `json:"identity" db:"email"`
	SecretMask string    `json:"secretMask" db:"password_hash"`
	IP         string    `json:"ip" db:"ip_address"`
	ClientSig  string    `json:"clientSig" db:"user_agent"`
	Provider   string    `json:"provider" db:"provider"`
	Payload    string    `json:"payload" db:"payload"`
	Failed     bool      `json:"failed" db:"failed"`
	At         time.Time `json:"at" db:"created_at"`
}

// StoreStats summarizes the persisted state for the dashboard.
type StoreStats struct {
	TotalAttempts    int `json:"totalAttempts" db:"total_attempts"`
	FailedAttempts   int `json:"failedAttempts" db:"failed_attempts"`
	TotalAlerts      int `json:"totalAlerts" db:"total_alerts"`
	UnresolvedAlerts int `json:"unresolvedAlerts" db:"unresolved_alerts"`
	DistinctIPs      int `json:"distinctIPs" db:"distinct_ips"`
}

// ActivityStore is the persistence collaborator. Failures from any of its
// methods are non-fatal for classification: the engine logs a warning and
// keeps going.
type ActivityStore interface {
	AppendActivity(ev Event, failed bool) error
	AppendAlert(alert *Alert) error
	FailedAttempts(key string, keyType KeyType, since time.Duration) ([]AttemptRecord, error)

	RecentActivity(limit int) ([]ActivityRecord, error)
	RecentAlerts(limit int) ([]Alert, error)
	ResolveAlert(id string) error
	Stats() (StoreStats, error)

	HealthCheck() error
}

// NotificationSender delivers a formatted alert message over one channel.
// Send returns the provider message id on success.
type NotificationSender interface {
	Name() string
	Send(ctx context.Context, message string) (id string, err error)
}

// MetricsCollector interface for observability.
type MetricsCollector interface {
	IncrementCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
	SetGauge(name string, value float64, labels map[string]string)
	HealthCheck() error
	ExportPrometheus() string
}
