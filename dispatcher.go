package honeyguard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oarkflow/log"
)

// fallbackDedupKey rate-limits alerts that carry no source IP.
const fallbackDedupKey = "unknown"

// DefaultAlertCooldown suppresses repeat notifications per dedup key.
const DefaultAlertCooldown = 5 * time.Minute

// ChannelAttempt is the outcome of one delivery attempt.
type ChannelAttempt struct {
	Channel string
	Success bool
	ID      string
	Err     error
}

// DispatchResult aggregates the per-channel outcomes for one alert.
type DispatchResult struct {
	RateLimited bool
	Attempts    []ChannelAttempt
}

// Dispatcher converts high-severity threats into outbound notifications,
// applying a per-key cooldown so a noisy source cannot flood the channels.
// Suppression is hard: suppressed alerts stay persisted but are never
// notified.
type Dispatcher struct {
	mu       sync.Mutex
	last     map[string]time.Time
	cooldown time.Duration

	registry    *NotificationRegistry
	metrics     MetricsCollector
	logger      log.Logger
	sendTimeout time.Duration
	now         func() time.Time
}

func NewDispatcher(registry *NotificationRegistry, cooldown time.Duration, metrics MetricsCollector, logger log.Logger) *Dispatcher {
	if cooldown <= 0 {
		cooldown = DefaultAlertCooldown
	}
	return &Dispatcher{
		last:        make(map[string]time.Time),
		cooldown:    cooldown,
		registry:    registry,
		metrics:     metrics,
		logger:      logger,
		sendTimeout: 15 * time.Second,
		now:         time.Now,
	}
}

// SetCooldown swaps the cooldown; existing dedup entries keep their stamps.
func (d *Dispatcher) SetCooldown(cooldown time.Duration) {
	if cooldown <= 0 {
		return
	}
	d.mu.Lock()
	d.cooldown = cooldown
	d.mu.Unlock()
}

// Dispatch delivers the alert over every enabled channel. The cooldown
// check-and-set happens atomically under one lock and the slot is consumed
// before any channel I/O, so concurrent dispatches for one key cannot both
// pass and failed sends still hold the cooldown. No lock is held while a
// channel call is in flight.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *Alert) DispatchResult {
	key := alert.IP
	if key == "" {
		key = fallbackDedupKey
	}

	now := d.now()
	d.mu.Lock()
	if last, ok := d.last[key]; ok && now.Sub(last) < d.cooldown {
		d.mu.Unlock()
		if d.metrics != nil {
			d.metrics.IncrementCounter("alerts_suppressed_total", map[string]string{"key": key})
		}
		return DispatchResult{RateLimited: true}
	}
	d.last[key] = now
	d.mu.Unlock()

	message := FormatAlertMessage(alert)
	senders := d.registry.Senders()

	attempts := make([]ChannelAttempt, len(senders))
	var wg sync.WaitGroup
	for i, sender := range senders {
		wg.Add(1)
		go func(i int, sender NotificationSender) {
			defer wg.Done()
			attempts[i] = d.attempt(ctx, sender, message)
		}(i, sender)
	}
	wg.Wait()

	for _, attempt := range attempts {
		status := "ok"
		if !attempt.Success {
			status = "error"
		}
		if d.metrics != nil {
			d.metrics.IncrementCounter("notifications_sent_total", map[string]string{
				"channel": attempt.Channel,
				"status":  status,
			})
		}
	}
	d.logger.Info().Str("alert", alert.ID).Str("key", key).Int("channels", len(attempts)).Msg("alert dispatched")
	return DispatchResult{Attempts: attempts}
}

func (d *Dispatcher) attempt(ctx context.Context, sender NotificationSender, message string) ChannelAttempt {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	start := time.Now()
	id, err := sender.Send(sendCtx, message)
	if d.metrics != nil {
		d.metrics.ObserveHistogram("notification_send_seconds", time.Since(start).Seconds(), map[string]string{
			"channel": sender.Name(),
		})
	}
	return ChannelAttempt{
		Channel: sender.Name(),
		Success: err == nil,
		ID:      id,
		Err:     err,
	}
}

// Evict drops dedup entries older than the cooldown so the key-space stays
// bounded.
func (d *Dispatcher) Evict(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	evicted := 0
	for key, stamp := range d.last {
		if now.Sub(stamp) >= d.cooldown {
			delete(d.last, key)
			evicted++
		}
	}
	return evicted
}

var severityMarkers = map[Severity]string{
	SeverityHigh:   "🚨",
	SeverityMedium: "⚠️",
	SeverityLow:    "ℹ️",
}

// FormatAlertMessage renders the outbound notification text. The template is
// deterministic and identical for every channel.
func FormatAlertMessage(alert *Alert) string {
	marker, ok := severityMarkers[alert.Severity]
	if !ok {
		marker = severityMarkers[SeverityLow]
	}
	ip := alert.IP
	if ip == "" {
		ip = "Unknown"
	}
	identity := alert.Identity
	if identity == "" {
		identity = "N/A"
	}
	return fmt.Sprintf(`%s HONEYPOT ALERT

%s

Details: %s
Severity: %s
IP Address: %s
Identity: %s
Time: %s

This is an automated security alert from your honeypot system.`,
		marker,
		alert.Title,
		alert.Description,
		strings.ToUpper(string(alert.Severity)),
		ip,
		identity,
		alert.CreatedAt.Format(time.RFC3339),
	)
}
