package database

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ghabxph/dnd-relay/internal/config"
)

func testConfig() *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		Name:            "dnd_relay_test",
		User:            "postgres",
		Password:        "test",
		SSLMode:         "disable",
		MaxConnections:  5,
		IdleConnections: 1,
		MaxLifetime:     time.Hour,
	}
}

func TestNewDatabase_NilConfig(t *testing.T) {
	if _, err := NewDatabase(nil, zaptest.NewLogger(t)); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNewDatabase(t *testing.T) {
	logger := zaptest.NewLogger(t)

	// This test requires a running PostgreSQL instance
	db, err := NewDatabase(testConfig(), logger)
	if err != nil {
		t.Skipf("PostgreSQL not available for testing: %v", err)
	}
	defer db.Close()

	if err := db.Health(); err != nil {
		t.Errorf("Database health check failed: %v", err)
	}

	if !db.IsConnected() {
		t.Error("Database should be connected")
	}

	// Migrations must be safe to re-run.
	for i := 0; i < 2; i++ {
		if err := db.RunMigrations(context.Background()); err != nil {
			t.Fatalf("RunMigrations pass %d failed: %v", i+1, err)
		}
	}
}

func TestDatabase_Close(t *testing.T) {
	logger := zaptest.NewLogger(t)

	db, err := NewDatabase(testConfig(), logger)
	if err != nil {
		t.Skipf("PostgreSQL not available for testing: %v", err)
	}

	if err := db.Close(); err != nil {
		t.Errorf("Database close failed: %v", err)
	}

	if err := db.Health(); err == nil {
		t.Error("Health check should fail after closing database")
	}
}
