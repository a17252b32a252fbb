package honeyguard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/oarkflow/log"
)

// BehaviorConfig holds the sliding-window thresholds in wire-friendly units.
type BehaviorConfig struct {
	StuffingMinFailures   int `json:"stuffingMinFailures"`
	StuffingMinIdentities int `json:"stuffingMinIdentities"`
	StuffingWindowMinutes int `json:"stuffingWindowMinutes"`

	SprayMinFailures   int `json:"sprayMinFailures"`
	SprayWindowMinutes int `json:"sprayWindowMinutes"`

	BruteForceMinFailures   int `json:"bruteForceMinFailures"`
	BruteForceWindowMinutes int `json:"bruteForceWindowMinutes"`
}

func (b BehaviorConfig) Thresholds() BehaviorThresholds {
	return BehaviorThresholds{
		StuffingAttempts:   b.StuffingMinFailures,
		StuffingIdentities: b.StuffingMinIdentities,
		StuffingWindow:     time.Duration(b.StuffingWindowMinutes) * time.Minute,
		SprayingAttempts:   b.SprayMinFailures,
		SprayingWindow:     time.Duration(b.SprayWindowMinutes) * time.Minute,
		BruteForceAttempts: b.BruteForceMinFailures,
		BruteForceWindow:   time.Duration(b.BruteForceWindowMinutes) * time.Minute,
	}
}

// ChannelConfig enables notification channels and carries their credentials.
// Twilio credentials may also arrive through environment variables, which
// take precedence over the file.
type ChannelConfig struct {
	EnableSMS      bool              `json:"enableSMS"`
	EnableWhatsApp bool              `json:"enableWhatsApp"`
	Twilio         TwilioCredentials `json:"twilio"`
}

// DashboardConfig protects the dashboard API. PasswordHash is a bcrypt hash.
type DashboardConfig struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
}

type Config struct {
	ListenAddr           string          `json:"listenAddr"`
	DatabasePath         string          `json:"databasePath"`
	AlertCooldownMinutes int             `json:"alertCooldownMinutes"`
	LedgerTTLMinutes     int             `json:"ledgerTTLMinutes"`
	Behavior             BehaviorConfig  `json:"behavior"`
	Channels             ChannelConfig   `json:"channels"`
	Dashboard            DashboardConfig `json:"dashboard"`
}

func DefaultConfig() Config {
	t := DefaultBehaviorThresholds()
	return Config{
		ListenAddr:           ":8080",
		DatabasePath:         "honeyguard.db",
		AlertCooldownMinutes: int(DefaultAlertCooldown / time.Minute),
		LedgerTTLMinutes:     int(defaultLedgerTTL / time.Minute),
		Behavior: BehaviorConfig{
			StuffingMinFailures:     t.StuffingAttempts,
			StuffingMinIdentities:   t.StuffingIdentities,
			StuffingWindowMinutes:   int(t.StuffingWindow / time.Minute),
			SprayMinFailures:        t.SprayingAttempts,
			SprayWindowMinutes:      int(t.SprayingWindow / time.Minute),
			BruteForceMinFailures:   t.BruteForceAttempts,
			BruteForceWindowMinutes: int(t.BruteForceWindow / time.Minute),
		},
	}
}

// LoadConfig reads path (JSON) over the defaults and applies environment
// overrides. A missing file is not an error; defaults plus environment apply.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config: %v", err)
			}
		} else if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %v", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("HONEYGUARD_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("HONEYGUARD_DB_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("TWILIO_ACCOUNT_SID"); v != "" {
		c.Channels.Twilio.AccountSID = v
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		c.Channels.Twilio.AuthToken = v
	}
	if v := os.Getenv("TWILIO_FROM_NUMBER"); v != "" {
		c.Channels.Twilio.FromNumber = v
	}
	if v := os.Getenv("TWILIO_TO_NUMBER"); v != "" {
		c.Channels.Twilio.ToNumber = v
	}
	if v := os.Getenv("TWILIO_WHATSAPP_FROM"); v != "" {
		c.Channels.Twilio.WhatsAppFrom = v
	}
	if v := os.Getenv("TWILIO_WHATSAPP_TO"); v != "" {
		c.Channels.Twilio.WhatsAppTo = v
	}
	if v := os.Getenv("DASHBOARD_USERNAME"); v != "" {
		c.Dashboard.Username = v
	}
	if v := os.Getenv("DASHBOARD_PASSWORD_HASH"); v != "" {
		c.Dashboard.PasswordHash = v
	}
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listenAddr is required")
	}
	if c.AlertCooldownMinutes < 0 {
		return fmt.Errorf("alertCooldownMinutes must not be negative")
	}
	if c.LedgerTTLMinutes <= 0 {
		return fmt.Errorf("ledgerTTLMinutes must be positive")
	}
	b := c.Behavior
	if b.StuffingMinFailures <= 0 || b.SprayMinFailures <= 0 || b.BruteForceMinFailures <= 0 {
		return fmt.Errorf("behavior failure thresholds must be positive")
	}
	if b.StuffingMinIdentities <= 0 {
		return fmt.Errorf("stuffingMinIdentities must be positive")
	}
	if b.StuffingWindowMinutes <= 0 || b.SprayWindowMinutes <= 0 || b.BruteForceWindowMinutes <= 0 {
		return fmt.Errorf("behavior windows must be positive")
	}
	if c.Channels.EnableSMS || c.Channels.EnableWhatsApp {
		if !c.Channels.Twilio.configured() {
			return fmt.Errorf("twilio credentials are required when SMS or WhatsApp is enabled")
		}
	}
	return nil
}

func (c Config) AlertCooldown() time.Duration {
	return time.Duration(c.AlertCooldownMinutes) * time.Minute
}

func (c Config) LedgerTTL() time.Duration {
	return time.Duration(c.LedgerTTLMinutes) * time.Minute
}

// ConfigWatcher reloads the config file on change and hands the parsed
// result to the callback. Invalid updates are logged and skipped.
type ConfigWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	logger  log.Logger
	onLoad  func(Config)
	done    chan struct{}
}

func NewConfigWatcher(path string, logger log.Logger, onLoad func(Config)) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %v", err)
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %v", dir, err)
	}
	cw := &ConfigWatcher{watcher: w, path: path, logger: logger, onLoad: onLoad, done: make(chan struct{})}
	go cw.run()
	return cw, nil
}

func (cw *ConfigWatcher) run() {
	target := filepath.Clean(cw.path)
	for {
		select {
		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadConfig(cw.path)
			if err != nil {
				cw.logger.Warn().Err(err).Str("path", cw.path).Msg("ignoring config update")
				continue
			}
			cw.logger.Info().Str("path", cw.path).Msg("config reloaded")
			cw.onLoad(cfg)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warn().Err(err).Msg("config watcher error")
		case <-cw.done:
			return
		}
	}
}

func (cw *ConfigWatcher) Close() error {
	close(cw.done)
	return cw.watcher.Close()
}
