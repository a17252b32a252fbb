package honeyguard

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.AlertCooldown() != 5*time.Minute {
		t.Fatalf("cooldown = %s, want 5m", cfg.AlertCooldown())
	}
	th := cfg.Behavior.Thresholds()
	if th.StuffingAttempts != 5 || th.StuffingIdentities != 3 || th.StuffingWindow != 15*time.Minute {
		t.Fatalf("stuffing thresholds = %+v", th)
	}
	if th.SprayingAttempts != 5 || th.SprayingWindow != 30*time.Minute {
		t.Fatalf("spraying thresholds = %+v", th)
	}
	if th.BruteForceAttempts != 10 || th.BruteForceWindow != 15*time.Minute {
		t.Fatalf("brute force thresholds = %+v", th)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "honeyguard.json")
	content := `{
		"listenAddr": ":9090",
		"alertCooldownMinutes": 10,
		"behavior": {
			"stuffingMinFailures": 3,
			"stuffingMinIdentities": 2,
			"stuffingWindowMinutes": 5,
			"sprayMinFailures": 4,
			"sprayWindowMinutes": 20,
			"bruteForceMinFailures": 6,
			"bruteForceWindowMinutes": 10
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.AlertCooldown() != 10*time.Minute {
		t.Fatalf("cooldown = %s", cfg.AlertCooldown())
	}
	if th := cfg.Behavior.Thresholds(); th.BruteForceAttempts != 6 {
		t.Fatalf("brute force attempts = %d, want 6", th.BruteForceAttempts)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "ACtest")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("HONEYGUARD_LISTEN_ADDR", ":7070")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr)
	}
	if cfg.Channels.Twilio.AccountSID != "ACtest" || cfg.Channels.Twilio.AuthToken != "token" {
		t.Fatalf("twilio credentials not applied: %+v", cfg.Channels.Twilio)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := DefaultConfig()
	bad.Behavior.BruteForceMinFailures = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("zero brute force threshold must fail validation")
	}

	bad = DefaultConfig()
	bad.Channels.EnableSMS = true
	if err := bad.Validate(); err == nil {
		t.Fatal("sms without twilio credentials must fail validation")
	}
}
