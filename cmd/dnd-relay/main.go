package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ghabxph/dnd-relay/internal/bot"
	"github.com/ghabxph/dnd-relay/internal/character"
	"github.com/ghabxph/dnd-relay/internal/config"
	"github.com/ghabxph/dnd-relay/internal/database"
	"github.com/ghabxph/dnd-relay/internal/logging"
	"github.com/ghabxph/dnd-relay/internal/notifications"
	"github.com/ghabxph/dnd-relay/internal/repository"
	"github.com/ghabxph/dnd-relay/internal/version"
)

var (
	envFile    = pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	rosterFile = pflag.String("roster", "", "YAML roster file (overrides ROSTER_FILE)")
)

func main() {
	pflag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dnd-relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing dotenv file is normal in production.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", *envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *rosterFile != "" {
		cfg.RosterFile = *rosterFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.AppVersion != "" {
		version.Version = cfg.AppVersion
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.EnableDebug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	roster := character.DefaultRoster()
	if cfg.RosterFile != "" {
		roster, err = character.LoadFile(cfg.RosterFile)
		if err != nil {
			return err
		}
	}

	build := version.Get()
	logger.Info("Starting "+version.App, build.Fields()...)

	logger.Info("Roster loaded",
		zap.String("file", cfg.RosterFile),
		zap.Int("commands", len(roster.Commands)),
		zap.Strings("characters", roster.Characters.Aliases()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []bot.Option{
		bot.WithErrorLogger(logging.NewDualLogger(logger, logging.WebhookNotifier(cfg.NotificationWebhooks, cfg.DeliveryTimeout))),
	}

	if cfg.EnableDatabasePersistence {
		db, err := database.NewDatabase(&cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			return err
		}
		relays := repository.NewRelayRepository(db, logger)
		opts = append(opts, bot.WithAudit(relays), bot.WithRelayReader(relays), bot.WithDatabase(db))

		if cfg.RelayLogRetention > 0 {
			go repository.NewRetentionService(relays, cfg.RelayLogPruneInterval, cfg.RelayLogRetention, logger).Start(ctx)
		}
	}

	service := bot.NewService(cfg, roster, logger, opts...)
	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start relay: %w", err)
	}

	notifyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := notifications.NewDeploymentNotifier(cfg.NotificationWebhooks, logger).
		NotifyDeployment(notifyCtx, build.String(), roster); err != nil {
		logger.Warn("Deployment notification failed", zap.Error(err))
	}
	cancel()

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	service.Stop()

	return nil
}
