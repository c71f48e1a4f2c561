package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxConnections  int
	IdleConnections int
	MaxLifetime     time.Duration
}

// Config holds all configuration for the relay
type Config struct {
	// Slack request verification
	VerificationToken string
	TeamID            string
	// SigningSecret is optional; when set, request signatures are checked too.
	SigningSecret string

	// Roster of characters and slash commands. Empty means the built-in roster.
	RosterFile string

	// Outbound delivery
	DeliveryTimeout time.Duration

	// Logging configuration
	LogLevel    string
	LogFormat   string
	EnableDebug bool

	// Server configuration
	ServerPort      int
	ServerHost      string
	HealthCheckPath string
	ShutdownTimeout time.Duration

	// Database configuration
	Database                  DatabaseConfig
	EnableDatabasePersistence bool
	// RelayLogRetention of zero keeps relay_log rows forever.
	RelayLogRetention     time.Duration
	RelayLogPruneInterval time.Duration
	// RelayAdminToken enables the read-only relay log API. Empty disables it.
	RelayAdminToken string

	// Incoming webhooks that get a message when the relay starts
	NotificationWebhooks []string
	AppVersion           string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DeliveryTimeout:       10 * time.Second,
		LogLevel:              "info",
		LogFormat:             "json",
		ServerPort:            8080,
		ServerHost:            "0.0.0.0",
		HealthCheckPath:       "/health",
		ShutdownTimeout:       5 * time.Second,
		RelayLogRetention:     30 * 24 * time.Hour,
		RelayLogPruneInterval: 30 * time.Minute,
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "dnd_relay",
			User:            "dnd_relay",
			SSLMode:         "disable",
			MaxConnections:  5,
			IdleConnections: 1,
			MaxLifetime:     time.Hour,
		},
	}

	var err error

	cfg.VerificationToken = os.Getenv("SLACK_DND_VTOKEN")
	if cfg.VerificationToken == "" {
		return nil, fmt.Errorf("SLACK_DND_VTOKEN is required")
	}

	cfg.TeamID = os.Getenv("SLACK_DND_TEAM_ID")
	if cfg.TeamID == "" {
		return nil, fmt.Errorf("SLACK_DND_TEAM_ID is required")
	}

	if val := os.Getenv("SLACK_SIGNING_SECRET"); val != "" {
		cfg.SigningSecret = val
	}

	if val := os.Getenv("ROSTER_FILE"); val != "" {
		cfg.RosterFile = val
	}

	if val := os.Getenv("DELIVERY_TIMEOUT"); val != "" {
		cfg.DeliveryTimeout, err = time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid DELIVERY_TIMEOUT: %w", err)
		}
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}

	if val := os.Getenv("LOG_FORMAT"); val != "" {
		cfg.LogFormat = val
	}

	if val := os.Getenv("ENABLE_DEBUG"); val != "" {
		cfg.EnableDebug, err = strconv.ParseBool(val)
		if err != nil {
			return nil, fmt.Errorf("invalid ENABLE_DEBUG: %w", err)
		}
	}

	if val := os.Getenv("SERVER_PORT"); val != "" {
		cfg.ServerPort, err = strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
		}
	}

	if val := os.Getenv("SERVER_HOST"); val != "" {
		cfg.ServerHost = val
	}

	if val := os.Getenv("HEALTH_CHECK_PATH"); val != "" {
		cfg.HealthCheckPath = val
	}

	if val := os.Getenv("SHUTDOWN_TIMEOUT"); val != "" {
		cfg.ShutdownTimeout, err = time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
		}
	}

	// Database configuration
	if val := os.Getenv("DATABASE_URL"); val != "" {
		cfg.Database.URL = val
	}

	if val := os.Getenv("DB_HOST"); val != "" {
		cfg.Database.Host = val
	}

	if val := os.Getenv("DB_PORT"); val != "" {
		cfg.Database.Port, err = strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_PORT: %w", err)
		}
	}

	if val := os.Getenv("DB_NAME"); val != "" {
		cfg.Database.Name = val
	}

	if val := os.Getenv("DB_USER"); val != "" {
		cfg.Database.User = val
	}

	if val := os.Getenv("DB_PASSWORD"); val != "" {
		cfg.Database.Password = val
	}

	if val := os.Getenv("DB_SSLMODE"); val != "" {
		cfg.Database.SSLMode = val
	}

	if val := os.Getenv("DB_MAX_CONNECTIONS"); val != "" {
		cfg.Database.MaxConnections, err = strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_MAX_CONNECTIONS: %w", err)
		}
	}

	if val := os.Getenv("DB_IDLE_CONNECTIONS"); val != "" {
		cfg.Database.IdleConnections, err = strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_IDLE_CONNECTIONS: %w", err)
		}
	}

	if val := os.Getenv("DB_MAX_LIFETIME"); val != "" {
		cfg.Database.MaxLifetime, err = time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid DB_MAX_LIFETIME: %w", err)
		}
	}

	if val := os.Getenv("ENABLE_DATABASE_PERSISTENCE"); val != "" {
		cfg.EnableDatabasePersistence, err = strconv.ParseBool(val)
		if err != nil {
			return nil, fmt.Errorf("invalid ENABLE_DATABASE_PERSISTENCE: %w", err)
		}
	}

	if val := os.Getenv("RELAY_LOG_RETENTION"); val != "" {
		cfg.RelayLogRetention, err = time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid RELAY_LOG_RETENTION: %w", err)
		}
	}

	if val := os.Getenv("RELAY_LOG_PRUNE_INTERVAL"); val != "" {
		cfg.RelayLogPruneInterval, err = time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid RELAY_LOG_PRUNE_INTERVAL: %w", err)
		}
	}

	if val := os.Getenv("RELAY_ADMIN_TOKEN"); val != "" {
		cfg.RelayAdminToken = val
	}

	if val := os.Getenv("SLACK_NOTIFICATION_WEBHOOKS"); val != "" {
		cfg.NotificationWebhooks = splitList(val)
	}

	if val := os.Getenv("APP_VERSION"); val != "" {
		cfg.AppVersion = val
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.VerificationToken == "" {
		return fmt.Errorf("slack verification token is required")
	}
	if c.TeamID == "" {
		return fmt.Errorf("slack team id is required")
	}
	if c.DeliveryTimeout <= 0 {
		return fmt.Errorf("delivery timeout must be positive")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	if !strings.HasPrefix(c.HealthCheckPath, "/") {
		return fmt.Errorf("health check path must start with /")
	}
	if c.RelayLogRetention < 0 {
		return fmt.Errorf("relay log retention cannot be negative")
	}
	if c.RelayLogRetention > 0 && c.RelayLogPruneInterval <= 0 {
		return fmt.Errorf("relay log prune interval must be positive")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", c.LogFormat)
	}
	return nil
}

// Addr returns the listen address for the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// DSN builds the PostgreSQL connection string. DATABASE_URL wins when set.
func (d *DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// splitList splits a comma separated value, dropping blanks
func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
