// Command devserver runs the local stand-in for the remote finance
// service: login, identity, transaction ingest with idempotency-key
// deduplication, and a health endpoint for the connectivity prober.
package main

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/alessandrolsdev/ledgersync/internal/devserver"
	"github.com/alessandrolsdev/ledgersync/internal/model"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	port := 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		// Dev-only default. The stand-in never holds real data.
		jwtSecret = "ledgersync-dev-secret-not-for-prod"
		logger.Warn("JWT_SECRET not set — using the built-in dev secret")
	}

	srv, err := devserver.New(devserver.Config{Port: port, JWTSecret: jwtSecret}, logger)
	if err != nil {
		logger.Error("failed to create dev server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// One seeded account so the agent can log in out of the box.
	seeded := model.Identity{
		Username:    "alice",
		DisplayName: "Alice Example",
		Email:       "alice@example.com",
		AvatarURL:   "https://example.com/avatars/alice.png",
		BirthDate:   time.Date(1990, time.March, 14, 0, 0, 0, 0, time.UTC),
	}
	if err := srv.SeedAccount(seeded, "correct horse battery"); err != nil {
		logger.Error("failed to seed account", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("seeded dev account", slog.String("username", seeded.Username))

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
