// Package config loads detector configuration from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/telhawk-systems/fraudhawk/internal/consumer"
	"github.com/telhawk-systems/fraudhawk/internal/scoring"
	"github.com/telhawk-systems/fraudhawk/internal/severity"
	"github.com/telhawk-systems/fraudhawk/internal/stream"
)

// Config holds all configuration for the fraud detector.
type Config struct {
	Server       ServerConfig        `mapstructure:"server"`
	Logging      LoggingConfig       `mapstructure:"logging"`
	Database     DatabaseConfig      `mapstructure:"database"`
	Redis        RedisConfig         `mapstructure:"redis"`
	NATS         stream.Config       `mapstructure:"nats"`
	Consumer     consumer.Config     `mapstructure:"consumer"`
	Model        ModelConfig         `mapstructure:"model"`
	Scoring      scoring.Config      `mapstructure:"scoring"`
	Severity     severity.Thresholds `mapstructure:"severity"`
	Retry        RetryConfig         `mapstructure:"retry"`
	Notification NotificationConfig  `mapstructure:"notification"`
}

// ServerConfig holds HTTP server configuration for health and metrics.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// RedisConfig holds Redis configuration for cache invalidation.
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
	Pattern string `mapstructure:"pattern"`
}

// ModelConfig holds anomaly model artifact settings.
type ModelConfig struct {
	Path string `mapstructure:"path"`
}

// RetryConfig holds the shared bounded-retry settings for persistence and
// notification delivery.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// NotificationConfig holds notification channel settings. A channel is
// enabled by giving it a destination.
type NotificationConfig struct {
	MinSeverity string        `mapstructure:"min_severity"`
	Timeout     time.Duration `mapstructure:"timeout"`

	SlackWebhookURL   string `mapstructure:"slack_webhook_url"`
	DiscordWebhookURL string `mapstructure:"discord_webhook_url"`
	TeamsWebhookURL   string `mapstructure:"teams_webhook_url"`
	WebhookURL        string `mapstructure:"webhook_url"`

	Email EmailConfig `mapstructure:"email"`

	// LogAlerts mirrors every dispatched alert into the service log.
	LogAlerts bool `mapstructure:"log_alerts"`
}

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

// Load reads configuration from file and environment variables.
// Environment variables use the DETECTOR prefix with underscores,
// e.g. DETECTOR_DATABASE_POSTGRES_HOST.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("DETECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "fraudhawk")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "fraudhawk")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.pattern", "anomalies:*")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.name", "fraudhawk-detector")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.timeout", "5s")

	v.SetDefault("consumer.durable", "fraud-detector")
	v.SetDefault("consumer.batch_size", 16)
	v.SetDefault("consumer.fetch_wait", "2s")

	v.SetDefault("model.path", "model/isolation_forest.json")

	v.SetDefault("scoring.high_value_threshold", 5000.0)
	v.SetDefault("scoring.suspicious_category", "Gambling")
	v.SetDefault("scoring.reference_location", "Helsinki")
	v.SetDefault("scoring.rule_boost", 0.75)
	v.SetDefault("scoring.anomaly_threshold", 0.6)

	v.SetDefault("severity.critical_score", 0.9)
	v.SetDefault("severity.high_score", 0.8)
	v.SetDefault("severity.warning_score", 0.6)
	v.SetDefault("severity.high_value_amount", 5000.0)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_delay", "10s")

	v.SetDefault("notification.min_severity", "high")
	v.SetDefault("notification.timeout", "10s")
	v.SetDefault("notification.log_alerts", false)
	v.SetDefault("notification.email.port", 587)
}
