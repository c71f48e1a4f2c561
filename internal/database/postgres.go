package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ghabxph/dnd-relay/internal/config"
)

type Database struct {
	db     *sql.DB
	config *config.DatabaseConfig
	logger *zap.Logger
}

func NewDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*Database, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config cannot be nil")
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.IdleConnections)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Name),
		zap.Int("max_connections", cfg.MaxConnections))

	return &Database{
		db:     db,
		config: cfg,
		logger: logger,
	}, nil
}

func (d *Database) Health() error {
	return d.db.Ping()
}

func (d *Database) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *Database) IsConnected() bool {
	return d.Health() == nil
}

func (d *Database) GetDB() *sql.DB {
	return d.db
}

// migrations are idempotent and run in order on every start.
var migrations = []struct {
	name string
	stmt string
}{
	{
		name: "001_relay_log",
		stmt: `CREATE TABLE IF NOT EXISTS relay_log (
			id             BIGSERIAL PRIMARY KEY,
			request_id     UUID        NOT NULL UNIQUE,
			command        TEXT        NOT NULL,
			channel_id     TEXT        NOT NULL,
			user_name      TEXT        NOT NULL,
			character_name TEXT        NOT NULL,
			message_text   TEXT        NOT NULL,
			delivered      BOOLEAN     NOT NULL,
			error          TEXT,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	},
	{
		name: "002_relay_log_indexes",
		stmt: `CREATE INDEX IF NOT EXISTS relay_log_channel_created_idx
			ON relay_log (channel_id, created_at DESC)`,
	},
}

func (d *Database) RunMigrations(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := d.db.ExecContext(ctx, m.stmt); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", m.name, err)
		}
		d.logger.Info("Migration executed successfully", zap.String("migration", m.name))
	}
	return nil
}
