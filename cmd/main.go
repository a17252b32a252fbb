package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oarkflow/ip"
	"github.com/oarkflow/log"

	"github.com/oarkflow/honeyguard"
)

func main() {
	configPath := flag.String("config", "honeyguard.json", "path to the JSON config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "honeyguard: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ip.Init()

	logger := log.Logger{
		Level:      log.InfoLevel,
		TimeFormat: time.RFC3339,
		Writer: &log.ConsoleWriter{
			ColorOutput: true,
		},
	}

	cfg, err := honeyguard.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var store honeyguard.ActivityStore
	if cfg.DatabasePath != "" {
		sqlStore, err := honeyguard.OpenSQLActivityStore(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer sqlStore.Close()
		store = sqlStore
		logger.Info().Str("path", cfg.DatabasePath).Msg("sqlite store ready")
	} else {
		store = honeyguard.NewInMemoryActivityStore()
		logger.Info().Msg("running with in-memory store")
	}

	registry := honeyguard.NewNotificationRegistry()
	registry.Register(honeyguard.NewLogSender(logger))
	if cfg.Channels.EnableSMS {
		if sender := honeyguard.NewSMSSender(cfg.Channels.Twilio); sender != nil {
			registry.Register(sender)
		} else {
			logger.Warn().Msg("sms channel enabled but twilio sms numbers are missing")
		}
	}
	if cfg.Channels.EnableWhatsApp {
		if sender := honeyguard.NewWhatsAppSender(cfg.Channels.Twilio); sender != nil {
			registry.Register(sender)
		} else {
			logger.Warn().Msg("whatsapp channel enabled but twilio whatsapp numbers are missing")
		}
	}

	engine := honeyguard.NewEngine(honeyguard.EngineOptions{
		Store:      store,
		Registry:   registry,
		Logger:     logger,
		Thresholds: cfg.Behavior.Thresholds(),
		Cooldown:   cfg.AlertCooldown(),
		LedgerTTL:  cfg.LedgerTTL(),
	})
	engine.WarmStart(500)
	engine.Start()
	defer engine.Stop()

	watcher, err := honeyguard.NewConfigWatcher(configPath, logger, engine.ApplyConfig)
	if err != nil {
		logger.Warn().Err(err).Msg("config hot reload disabled")
	} else {
		defer watcher.Close()
	}

	server := honeyguard.NewServer(engine, cfg, logger)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdown
		logger.Info().Msg("shutting down gracefully")
		if err := server.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	return server.Listen(cfg.ListenAddr)
}
