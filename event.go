package honeyguard

import (
	"strings"
	"time"
)

// EventType identifies which decoy surface produced an event.
type EventType string

const (
	EventLoginAttempt EventType = "login_attempt"
	EventOAuthAttempt EventType = "oauth_attempt"
	EventPathProbe    EventType = "path_probe"
)

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

type ThreatKind string

const (
	ThreatSQLInjection       ThreatKind = "sql_injection"
	ThreatXSSAttempt         ThreatKind = "xss_attempt"
	ThreatDirectoryTraversal ThreatKind = "directory_traversal"
	ThreatAdminTargeting     ThreatKind = "admin_targeting"
	ThreatCredentialStuffing ThreatKind = "credential_stuffing"
	ThreatPasswordSpraying   ThreatKind = "password_spraying"
	ThreatBruteForce         ThreatKind = "brute_force"
	ThreatBotScanning        ThreatKind = "bot_scanning"
)

// Event is one observed attempt against the decoy surface. Optional fields
// (Identity, Secret, ClientSig, Payload, Provider) use "" when absent. Events
// are immutable once created and passed by value into the engine.
type Event struct {
	Type       EventType
	Identity   string
	Secret     string
	IP         string
	ClientSig  string
	Payload    string
	Provider   string
	ObservedAt time.Time
}

// Finding is an unscored detection signal from a single classifier.
type Finding struct {
	Kind     ThreatKind
	Severity Severity
	Reason   string
}

// Threat is a scored classification result derived from one or more findings.
type Threat struct {
	Kind     ThreatKind `json:"kind"`
	Severity Severity   `json:"severity"`
	Reason   string     `json:"reason"`
	Score    int        `json:"score"`
	IP       string     `json:"ip"`
	Identity string     `json:"identity,omitempty"`
}

// Alert is the persisted, operator-facing record derived from a Threat.
type Alert struct {
	ID          string     `json:"id" db:"id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description" db:"description"`
	Severity    Severity   `json:"severity" db:"severity"`
	ReasonCode  ThreatKind `json:"reasonCode" db:"reason_code"`
	IP          string     `json:"ip" db:"ip_address"`
	Identity    string     `json:"identity" db:"email"`
	Resolved    bool       `json:"resolved" db:"resolved"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
}

// MaskSecret keeps the first three characters of captured secret material and
// blanks the rest. Secrets are never stored verbatim.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 3 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:3] + strings.Repeat("*", len(secret)-3)
}
