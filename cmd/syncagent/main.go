// Command syncagent wires the sync core together and keeps it running:
// durable storage, session restore, the connectivity prober, and the
// drain coordinator. A host application embeds the same packages; this
// binary exists so the module is runnable end to end against cmd/devserver.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alessandrolsdev/ledgersync/internal/api"
	"github.com/alessandrolsdev/ledgersync/internal/connectivity"
	"github.com/alessandrolsdev/ledgersync/internal/outbox"
	"github.com/alessandrolsdev/ledgersync/internal/repository/sqlite"
	"github.com/alessandrolsdev/ledgersync/internal/service"
	"github.com/alessandrolsdev/ledgersync/internal/session"
	"github.com/alessandrolsdev/ledgersync/internal/syncer"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	dbPath := "data/ledgersync.db"
	if envDB := os.Getenv("DB_PATH"); envDB != "" {
		dbPath = envDB
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(dbPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	probeInterval := 15 * time.Second
	if envInterval := os.Getenv("PROBE_INTERVAL"); envInterval != "" {
		parsed, err := time.ParseDuration(envInterval)
		if err != nil || parsed <= 0 {
			logger.Error("invalid PROBE_INTERVAL value", slog.String("value", envInterval))
			os.Exit(1)
		}
		probeInterval = parsed
	}

	db, err := sqlite.New(dbPath)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(apiURL, logger)
	sess := session.NewStore(db, client, logger)

	queue, err := outbox.Open(ctx, db, logger)
	if err != nil {
		logger.Error("failed to open outbox", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Assume offline until the first probe says otherwise; the
	// offline→online transition is itself a drain trigger.
	monitor := connectivity.NewMonitor(false)

	coordinator := syncer.New(sess, queue, client, monitor, logger)
	coordinator.Watch()

	// Adopt any credential from a previous run; this re-enters Resolving
	// exactly like a fresh login would.
	if err := sess.Restore(ctx); err != nil {
		logger.Error("failed to restore session", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Optional headless login for first runs: with no stored credential
	// and LEDGER_USERNAME/LEDGER_PASSWORD set, log in at startup.
	if sess.Credential() == "" {
		username := os.Getenv("LEDGER_USERNAME")
		password := os.Getenv("LEDGER_PASSWORD")
		if username != "" && password != "" {
			auth := service.NewAuthService(client, sess, coordinator, logger)
			if err := auth.Login(ctx, username, password); err != nil {
				logger.Warn("startup login failed", slog.String("error", err.Error()))
			}
		}
	}

	prober := connectivity.NewProber(monitor, client, probeInterval, logger)
	go prober.Run(ctx)

	logger.Info("sync agent running",
		slog.String("api", apiURL),
		slog.String("database", dbPath),
		slog.Int("pending", queue.Len()),
	)

	<-ctx.Done()
	logger.Info("shutdown signal received", slog.Int("pending", queue.Len()))
}
