package honeyguard

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLActivityStore implements ActivityStore on SQLite through sqlx.
type SQLActivityStore struct {
	db *sqlx.DB
}

func NewSQLActivityStore(db *sqlx.DB) *SQLActivityStore {
	return &SQLActivityStore{db: db}
}

// OpenSQLActivityStore opens (or creates) the SQLite database at path and
// ensures the schema exists.
func OpenSQLActivityStore(path string) (*SQLActivityStore, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	store := NewSQLActivityStore(db)
	if err := store.Init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS activity_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '',
		failed BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_ip_time ON activity_logs (ip_address, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_email_time ON activity_logs (email, created_at)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		severity TEXT NOT NULL,
		reason_code TEXT NOT NULL,
		ip_address TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		resolved BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ip_tracking (
		ip_address TEXT PRIMARY KEY,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_attempts INTEGER NOT NULL DEFAULT 0
	)`,
}

func (s *SQLActivityStore) Init() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %v", err)
		}
	}
	return nil
}

func (s *SQLActivityStore) AppendActivity(ev Event, failed bool) error {
	at := ev.ObservedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO activity_logs (type, email, password_hash, ip_address, user_agent, provider, payload, failed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Type, ev.Identity, MaskSecret(ev.Secret), ev.IP, ev.ClientSig, ev.Provider, ev.Payload, failed, at,
	)
	if err != nil {
		return fmt.Errorf("failed to append activity: %v", err)
	}
	if ev.IP != "" {
		failures := 0
		if failed {
			failures = 1
		}
		_, err = s.db.Exec(
			`INSERT INTO ip_tracking (ip_address, first_seen, last_seen, attempt_count, failed_attempts)
			 VALUES (?, ?, ?, 1, ?)
			 ON CONFLICT(ip_address) DO UPDATE SET
				last_seen = excluded.last_seen,
				attempt_count = attempt_count + 1,
				failed_attempts = failed_attempts + excluded.failed_attempts`,
			ev.IP, at, at, failures,
		)
		if err != nil {
			return fmt.Errorf("failed to track ip: %v", err)
		}
	}
	return nil
}

func (s *SQLActivityStore) AppendAlert(alert *Alert) error {
	if alert == nil {
		return fmt.Errorf("alert is nil")
	}
	_, err := s.db.Exec(
		`INSERT INTO alerts (id, title, description, severity, reason_code, ip_address, email, resolved, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.Title, alert.Description, alert.Severity, alert.ReasonCode,
		alert.IP, alert.Identity, alert.Resolved, alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append alert: %v", err)
	}
	return nil
}

func (s *SQLActivityStore) FailedAttempts(key string, keyType KeyType, since time.Duration) ([]AttemptRecord, error) {
	column := "ip_address"
	if keyType == KeyIdentity {
		column = "email"
	}
	cutoff := time.Now().Add(-since)
	var records []AttemptRecord
	err := s.db.Select(&records,
		fmt.Sprintf(`SELECT ip_address, email, created_at FROM activity_logs
		 WHERE %s = ? AND failed = 1 AND created_at > ?
		 ORDER BY created_at DESC`, column),
		key, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed attempts: %v", err)
	}
	return records, nil
}

func (s *SQLActivityStore) RecentActivity(limit int) ([]ActivityRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []ActivityRecord
	err := s.db.Select(&records,
		`SELECT id, type, email, password_hash, ip_address, user_agent, provider, payload, failed, created_at
		 FROM activity_logs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %v", err)
	}
	return records, nil
}

func (s *SQLActivityStore) RecentAlerts(limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	var alerts []Alert
	err := s.db.Select(&alerts,
		`SELECT id, title, description, severity, reason_code, ip_address, email, resolved, created_at
		 FROM alerts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %v", err)
	}
	return alerts, nil
}

func (s *SQLActivityStore) ResolveAlert(id string) error {
	res, err := s.db.Exec(`UPDATE alerts SET resolved = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("alert %s not found", id)
	}
	return nil
}

func (s *SQLActivityStore) Stats() (StoreStats, error) {
	var stats StoreStats
	err := s.db.Get(&stats, `SELECT
		(SELECT COUNT(*) FROM activity_logs) AS total_attempts,
		(SELECT COUNT(*) FROM activity_logs WHERE failed = 1) AS failed_attempts,
		(SELECT COUNT(*) FROM alerts) AS total_alerts,
		(SELECT COUNT(*) FROM alerts WHERE resolved = 0) AS unresolved_alerts,
		(SELECT COUNT(DISTINCT ip_address) FROM activity_logs WHERE ip_address != '') AS distinct_ips`)
	if err != nil {
		return StoreStats{}, fmt.Errorf("failed to query stats: %v", err)
	}
	return stats, nil
}

func (s *SQLActivityStore) HealthCheck() error {
	return s.db.Ping()
}

func (s *SQLActivityStore) Close() error {
	return s.db.Close()
}
