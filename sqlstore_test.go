package honeyguard

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*SQLActivityStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLActivityStore(sqlx.NewDb(db, "sqlmock")), mock
}

func TestSQLStoreAppendActivityMasksSecret(t *testing.T) {
	store, mock := newMockStore(t)

	ev := Event{
		Type:       EventLoginAttempt,
		Identity:   "admin@example.com",
		Secret:     "supersecret",
		IP:         "203.0.113.7",
		ClientSig:  "curl/8.4.0",
		ObservedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO activity_logs").
		WithArgs(ev.Type, ev.Identity, "sup********", ev.IP, ev.ClientSig, "", "", true, ev.ObservedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ip_tracking").
		WithArgs(ev.IP, ev.ObservedAt, ev.ObservedAt, 1).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.AppendActivity(ev, true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreAppendActivityWithoutIPSkipsTracking(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO activity_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.AppendActivity(Event{Type: EventPathProbe, ObservedAt: time.Now()}, true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreAppendAlert(t *testing.T) {
	store, mock := newMockStore(t)

	alert := &Alert{
		ID:         "a-1",
		Title:      "Brute Force Attack Detected",
		Severity:   SeverityHigh,
		ReasonCode: ThreatBruteForce,
		IP:         "203.0.113.7",
		CreatedAt:  time.Now(),
	}
	mock.ExpectExec("INSERT INTO alerts").
		WithArgs(alert.ID, alert.Title, alert.Description, alert.Severity, alert.ReasonCode,
			alert.IP, alert.Identity, alert.Resolved, alert.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.AppendAlert(alert))
	require.Error(t, store.AppendAlert(nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreFailedAttemptsByIP(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"ip_address", "email", "created_at"}).
		AddRow("203.0.113.7", "a@example.com", now).
		AddRow("203.0.113.7", "b@example.com", now.Add(-time.Minute))
	mock.ExpectQuery(`ip_address = \? AND failed = 1`).
		WillReturnRows(rows)

	records, err := store.FailedAttempts("203.0.113.7", KeyIP, 15*time.Minute)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a@example.com", records[0].Identity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreFailedAttemptsByIdentity(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"ip_address", "email", "created_at"}).
		AddRow("203.0.113.7", "victim@example.com", time.Now())
	mock.ExpectQuery(`email = \? AND failed = 1`).
		WillReturnRows(rows)

	records, err := store.FailedAttempts("victim@example.com", KeyIdentity, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "203.0.113.7", records[0].IP)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreResolveAlert(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE alerts SET resolved").
		WithArgs("a-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.ResolveAlert("a-1"))

	mock.ExpectExec("UPDATE alerts SET resolved").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.Error(t, store.ResolveAlert("missing"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreStats(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{
		"total_attempts", "failed_attempts", "total_alerts", "unresolved_alerts", "distinct_ips",
	}).AddRow(120, 80, 12, 3, 9)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 120, stats.TotalAttempts)
	assert.Equal(t, 80, stats.FailedAttempts)
	assert.Equal(t, 3, stats.UnresolvedAlerts)
	assert.Equal(t, 9, stats.DistinctIPs)
	require.NoError(t, mock.ExpectationsWereMet())
}
