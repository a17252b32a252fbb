package honeyguard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oarkflow/log"
)

var threatScores = map[ThreatKind]int{
	ThreatSQLInjection:       9,
	ThreatXSSAttempt:         8,
	ThreatDirectoryTraversal: 7,
	ThreatAdminTargeting:     9,
	ThreatCredentialStuffing: 8,
	ThreatPasswordSpraying:   7,
	ThreatBruteForce:         8,
	ThreatBotScanning:        6,
}

var threatTitles = map[ThreatKind]string{
	ThreatSQLInjection:       "SQL Injection Attempt Detected",
	ThreatXSSAttempt:         "Cross-Site Scripting Attempt",
	ThreatDirectoryTraversal: "Directory Traversal Attempt",
	ThreatAdminTargeting:     "Administrative Account Targeted",
	ThreatCredentialStuffing: "Credential Stuffing Attack",
	ThreatPasswordSpraying:   "Password Spraying Attack",
	ThreatBruteForce:         "Brute Force Attack Detected",
	ThreatBotScanning:        "Automated Bot Scanning",
}

func threatTitle(kind ThreatKind) string {
	if title, ok := threatTitles[kind]; ok {
		return title
	}
	return "Suspicious Activity Detected"
}

// NewAlert derives the operator-facing record from a threat.
func NewAlert(t Threat, at time.Time) *Alert {
	return &Alert{
		ID:          uuid.NewString(),
		Title:       threatTitle(t.Kind),
		Description: t.Reason,
		Severity:    t.Severity,
		ReasonCode:  t.Kind,
		IP:          t.IP,
		Identity:    t.Identity,
		CreatedAt:   at,
	}
}

// Classifier merges stateless pattern findings with behavioral findings into
// scored threats, persisting one alert per threat and dispatching
// notifications for high-severity ones.
type Classifier struct {
	aggregator *Aggregator
	store      ActivityStore
	dispatcher *Dispatcher
	ledger     *Ledger
	metrics    MetricsCollector
	logger     log.Logger
	now        func() time.Time
}

func NewClassifier(aggregator *Aggregator, store ActivityStore, dispatcher *Dispatcher, ledger *Ledger, metrics MetricsCollector, logger log.Logger) *Classifier {
	return &Classifier{
		aggregator: aggregator,
		store:      store,
		dispatcher: dispatcher,
		ledger:     ledger,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Classify records the event and returns zero or more threats. Behavioral
// state is recorded before it is queried, so the triggering event counts
// toward its own thresholds. Persistence failures degrade to warnings; a
// classification decision is always produced.
func (c *Classifier) Classify(ctx context.Context, ev Event, failed bool) []Threat {
	if c.store != nil {
		if err := c.store.AppendActivity(ev, failed); err != nil {
			c.logger.Warn().Err(err).Str("ip", ev.IP).Msg("activity append failed, classification continues")
		}
	}

	findings := MatchPatterns(ev)
	findings = append(findings, c.aggregator.Observe(ev.IP, ev.Identity, failed, ev.ObservedAt)...)
	if len(findings) == 0 {
		return nil
	}

	threats := make([]Threat, 0, len(findings))
	for _, f := range findings {
		threats = append(threats, Threat{
			Kind:     f.Kind,
			Severity: f.Severity,
			Reason:   f.Reason,
			Score:    threatScores[f.Kind],
			IP:       ev.IP,
			Identity: ev.Identity,
		})
	}

	for _, threat := range threats {
		c.processThreat(ctx, threat)
	}
	if c.ledger != nil {
		c.ledger.Record(ev.IP, ev.Identity, threats)
	}
	return threats
}

func (c *Classifier) processThreat(ctx context.Context, threat Threat) {
	if c.metrics != nil {
		c.metrics.IncrementCounter("threats_detected_total", map[string]string{
			"kind":     string(threat.Kind),
			"severity": string(threat.Severity),
		})
	}
	c.logger.Info().
		Str("kind", string(threat.Kind)).
		Str("severity", string(threat.Severity)).
		Str("ip", threat.IP).
		Int("score", threat.Score).
		Msg("threat detected")

	alert := NewAlert(threat, c.now())
	if c.store != nil {
		if err := c.store.AppendAlert(alert); err != nil {
			c.logger.Warn().Err(err).Str("alert", alert.ID).Msg("alert append failed")
		}
	}

	if threat.Severity == SeverityHigh && c.dispatcher != nil {
		result := c.dispatcher.Dispatch(ctx, alert)
		if result.RateLimited {
			c.logger.Debug().Str("ip", threat.IP).Msg("alert dispatch suppressed by cooldown")
			return
		}
		for _, attempt := range result.Attempts {
			if attempt.Err != nil {
				c.logger.Warn().Err(attempt.Err).Str("channel", attempt.Channel).Msg("notification failed")
			}
		}
	}
}
