package honeyguard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oarkflow/log"
)

const janitorInterval = time.Minute

// Engine owns the analysis pipeline: pattern matching, behavioral windows,
// threat scoring, persistence and alert dispatch, plus the janitor that keeps
// the in-memory state bounded.
type Engine struct {
	store      ActivityStore
	aggregator *Aggregator
	dispatcher *Dispatcher
	ledger     *Ledger
	metrics    MetricsCollector
	classifier *Classifier
	registry   *NotificationRegistry
	logger     log.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stop      chan struct{}
	done      chan struct{}
}

// EngineOptions configure a new engine. Store may be nil; analysis then runs
// purely in memory.
type EngineOptions struct {
	Store      ActivityStore
	Registry   *NotificationRegistry
	Metrics    MetricsCollector
	Logger     log.Logger
	Thresholds BehaviorThresholds
	Cooldown   time.Duration
	LedgerTTL  time.Duration
}

func NewEngine(opts EngineOptions) *Engine {
	if opts.Registry == nil {
		opts.Registry = NewNotificationRegistry()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewInMemoryMetricsCollector()
	}
	if opts.Thresholds == (BehaviorThresholds{}) {
		opts.Thresholds = DefaultBehaviorThresholds()
	}

	aggregator := NewAggregator(opts.Thresholds)
	dispatcher := NewDispatcher(opts.Registry, opts.Cooldown, opts.Metrics, opts.Logger)
	ledger := NewLedger(opts.LedgerTTL)
	classifier := NewClassifier(aggregator, opts.Store, dispatcher, ledger, opts.Metrics, opts.Logger)

	return &Engine{
		store:      opts.Store,
		aggregator: aggregator,
		dispatcher: dispatcher,
		ledger:     ledger,
		metrics:    opts.Metrics,
		classifier: classifier,
		registry:   opts.Registry,
		logger:     opts.Logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Analyze classifies one observed event. Failed marks whether the interaction
// was a failed authentication attempt; only failed attempts feed the
// behavioral windows.
func (e *Engine) Analyze(ctx context.Context, ev Event, failed bool) []Threat {
	if ev.ObservedAt.IsZero() {
		ev.ObservedAt = time.Now()
	}
	e.metrics.IncrementCounter("events_analyzed_total", map[string]string{"type": string(ev.Type)})
	return e.classifier.Classify(ctx, ev, failed)
}

// WarmStart replays recent persisted failures into the behavioral windows so
// a restart does not reset in-flight campaigns. Best effort: a store error
// logs a warning and the engine starts cold.
func (e *Engine) WarmStart(limit int) {
	if e.store == nil {
		return
	}
	if limit <= 0 {
		limit = 500
	}
	records, err := e.store.RecentActivity(limit)
	if err != nil {
		e.logger.Warn().Err(err).Msg("warm start skipped, starting cold")
		return
	}
	replayed := 0
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if !r.Failed {
			continue
		}
		e.aggregator.Record(r.IP, r.Identity, true, r.At)
		replayed++
	}
	e.logger.Info().Int("replayed", replayed).Msg("behavioral windows warmed from store")
}

// Start launches the janitor. Call Stop to shut it down.
func (e *Engine) Start() {
	e.startOnce.Do(func() {
		e.started = true
		go e.janitor()
	})
}

func (e *Engine) janitor() {
	defer close(e.done)
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			evicted := e.aggregator.Evict(now)
			evicted += e.dispatcher.Evict(now)
			e.ledger.Cleanup()
			e.metrics.SetGauge("window_keys_active", float64(e.aggregator.ips.Len()+e.aggregator.identities.Len()), nil)
			if evicted > 0 {
				e.logger.Debug().Int("evicted", evicted).Msg("janitor swept stale keys")
			}
		case <-e.stop:
			return
		}
	}
}

func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
	if e.started {
		<-e.done
	}
}

// ApplyConfig swaps the runtime-tunable settings. Windows and dedup stamps
// are kept.
func (e *Engine) ApplyConfig(cfg Config) {
	e.aggregator.SetThresholds(cfg.Behavior.Thresholds())
	e.dispatcher.SetCooldown(cfg.AlertCooldown())
	e.logger.Info().Msg("runtime settings applied")
}

func (e *Engine) Store() ActivityStore            { return e.store }
func (e *Engine) Ledger() *Ledger                 { return e.ledger }
func (e *Engine) Metrics() MetricsCollector       { return e.metrics }
func (e *Engine) Dispatcher() *Dispatcher         { return e.dispatcher }
func (e *Engine) Registry() *NotificationRegistry { return e.registry }

// HealthCheck reports the health of the engine's collaborators.
func (e *Engine) HealthCheck() map[string]string {
	health := map[string]string{"engine": "ok"}
	if e.store != nil {
		if err := e.store.HealthCheck(); err != nil {
			health["store"] = fmt.Sprintf("error: %v", err)
		} else {
			health["store"] = "ok"
		}
	}
	if err := e.metrics.HealthCheck(); err != nil {
		health["metrics"] = fmt.Sprintf("error: %v", err)
	} else {
		health["metrics"] = "ok"
	}
	return health
}
