package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nocdem/dna-messenger-sub005/internal/config"
	"github.com/nocdem/dna-messenger-sub005/internal/cryptox"
	"github.com/nocdem/dna-messenger-sub005/internal/dht"
	"github.com/nocdem/dna-messenger-sub005/internal/logging"
	"github.com/nocdem/dna-messenger-sub005/internal/messenger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	identity, err := cryptox.LoadOrCreateIdentity(cfg.IdentityFile)
	if err != nil {
		return err
	}
	log.Info(ctx, "identity loaded", "fingerprint", cryptox.FingerprintHex(identity.Fingerprint))

	db, err := messenger.OpenDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	// The networked DHT transport is an external collaborator; until it is
	// wired in, a process-local store lets everything else run.
	handle := dht.NewMemory().Handle(identity.Fingerprint[:])

	svc := messenger.New(db, handle, identity, cfg, log)
	defer svc.Close()

	rotation := time.NewTicker(cfg.DayRotationCheckInterval)
	defer rotation.Stop()
	cleanup := time.NewTicker(time.Hour)
	defer cleanup.Stop()

	log.Info(ctx, "messenger running", "database", cfg.DatabaseDSN)
	for {
		select {
		case <-ctx.Done():
			log.Info(context.Background(), "shutting down")
			return nil
		case <-rotation.C:
			svc.CheckDayRotation()
		case <-cleanup.C:
			if n, err := svc.CleanupExpiredKeys(ctx); err != nil {
				log.Warn(ctx, "key cleanup failed", "error", err)
			} else if n > 0 {
				log.Info(ctx, "expired keys removed", "count", n)
			}
		}
	}
}
