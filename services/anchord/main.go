package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"anchorledger/core/anchor"
	"anchorledger/core/events"
	"anchorledger/observability"
	"anchorledger/observability/logging"
	telemetry "anchorledger/observability/otel"
	"anchorledger/services/anchord/config"
	"anchorledger/services/anchord/journal"
	"anchorledger/services/anchord/server"
	"anchorledger/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/anchord/config.yaml", "path to anchord config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ANCHORD_ENV"))
	logging.Setup("anchord", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.SetupWithOptions("anchord", env, logging.Options{
		Level:      logging.ParseLevel(cfg.Log.Level),
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv("anchord", env))
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	var db storage.Database
	if path := strings.TrimSpace(cfg.DatabasePath); path != "" {
		ldb, err := storage.NewLevelDB(path)
		if err != nil {
			log.Fatalf("open ledger database: %v", err)
		}
		db = ldb
	} else {
		logger.Warn("no database path configured; ledger state is in-memory")
		db = storage.NewMemDB()
	}
	defer db.Close()

	feed := events.NewFeed(cfg.HTTP.StreamBuffer)
	feed.OnDrop(observability.Events().RecordDropped)
	emitters := events.Multi{
		events.EmitterFunc(func(evt events.Event) { observability.Events().RecordPublished(evt.EventType()) }),
		feed,
	}
	var eventJournal server.EventJournal
	if strings.TrimSpace(cfg.Journal.DSN) != "" {
		j, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN, logger)
		if err != nil {
			log.Fatalf("open journal: %v", err)
		}
		defer j.Close()
		emitters = append(emitters, j)
		eventJournal = j
	}

	ledger, err := anchor.NewService(db, anchor.Config{
		Domain:  cfg.AnchorDomain(),
		Owner:   cfg.OwnerAddress(),
		Limits:  cfg.AnchorLimits(),
		Emitter: emitters,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("init ledger: %v", err)
	}

	auth := server.NewAuthenticator(server.AuthConfig{
		HMACSecret: cfg.AdminSecret(),
		Issuer:     cfg.Admin.Issuer,
		Audience:   cfg.Admin.Audience,
	}, logger)
	if auth == nil {
		logger.Warn("admin secret not set; pause endpoints disabled", slog.String("env", cfg.Admin.JWTSecretEnv))
	}

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		ReadTimeout:   cfg.HTTP.ReadTimeout.Duration,
		WriteTimeout:  cfg.HTTP.WriteTimeout.Duration,
		RateLimit: server.RateLimit{
			PerSecond: cfg.HTTP.RateLimitPerSecond,
			Burst:     cfg.HTTP.RateLimitBurst,
		},
	}, ledger, feed, eventJournal, auth, logger)
	if err != nil {
		log.Fatalf("init server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("anchord starting",
		slog.String("domain", ledger.Domain().Name),
		slog.Uint64("chain_id", ledger.Domain().ChainID),
		slog.String("owner", ledger.Owner().Hex()),
		slog.Bool("paused", ledger.Paused()),
	)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("anchord stopped")
}
