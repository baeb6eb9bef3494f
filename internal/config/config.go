// Package config handles application configuration loading and validation using Viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Gamification GamificationConfig `mapstructure:"gamification"`
	Notify       NotifyConfig       `mapstructure:"notify"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig contains database connection settings for PostgreSQL and Redis.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"` // GORM AutoMigrate instead of SQL migrations (dev only)
}

// RedisConfig contains Redis cache connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// SchedulerConfig contains the cron jobs hosted next to the engine.
type SchedulerConfig struct {
	Enabled                   bool    `mapstructure:"enabled"`
	Timezone                  string  `mapstructure:"timezone"`
	ReengagementSchedule      string  `mapstructure:"reengagement_schedule"` // cron expression
	StreakRiskSchedule        string  `mapstructure:"streak_risk_schedule"`  // cron expression
	ReengagementMultiplier    string  `mapstructure:"reengagement_multiplier"`
	ReengagementDurationHours int     `mapstructure:"reengagement_duration_hours"`
	StreakRiskMinHoursLeft    float64 `mapstructure:"streak_risk_min_hours_left"`
}

// MetricsConfig contains metrics settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// GamificationConfig contains bootstrap settings for the engine. The tunable XP knobs live in the database.
type GamificationConfig struct {
	ConfigCacheTTL          int    `mapstructure:"config_cache_ttl"` // seconds
	LeaderboardDefaultLimit int    `mapstructure:"leaderboard_default_limit"`
	LeaderboardMaxLimit     int    `mapstructure:"leaderboard_max_limit"`
	MaxAttemptRetries       int    `mapstructure:"max_attempt_retries"`
	AchievementsFile        string `mapstructure:"achievements_file"`
}

// NotifyConfig contains the webhook used to hand notifications to the email automation service.
type NotifyConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Enabled    bool   `mapstructure:"enabled"`
	Timeout    int    `mapstructure:"timeout"` // seconds
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/gamification-engine/")
	}

	setDefaults(v)

	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")

	// PostgreSQL configuration
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")
	_ = v.BindEnv("database.postgres.auto_migrate", "POSTGRES_AUTO_MIGRATE")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")
	_ = v.BindEnv("scheduler.reengagement_schedule", "SCHEDULER_REENGAGEMENT_SCHEDULE")
	_ = v.BindEnv("scheduler.streak_risk_schedule", "SCHEDULER_STREAK_RISK_SCHEDULE")

	// Gamification configuration
	_ = v.BindEnv("gamification.config_cache_ttl", "GAMIFICATION_CONFIG_CACHE_TTL")
	_ = v.BindEnv("gamification.leaderboard_max_limit", "GAMIFICATION_LEADERBOARD_MAX_LIMIT")
	_ = v.BindEnv("gamification.achievements_file", "GAMIFICATION_ACHIEVEMENTS_FILE")

	// Notification webhook
	_ = v.BindEnv("notify.webhook_url", "NOTIFY_WEBHOOK_URL")
	_ = v.BindEnv("notify.enabled", "NOTIFY_ENABLED")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("metrics.prometheus.path", "/metrics")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.reengagement_schedule", "0 9 * * *")
	v.SetDefault("scheduler.streak_risk_schedule", "0 18 * * *")
	v.SetDefault("scheduler.reengagement_multiplier", "2x")
	v.SetDefault("scheduler.reengagement_duration_hours", 48)
	v.SetDefault("scheduler.streak_risk_min_hours_left", 1)
	v.SetDefault("gamification.config_cache_ttl", 300)
	v.SetDefault("gamification.leaderboard_default_limit", 10)
	v.SetDefault("gamification.leaderboard_max_limit", 100)
	v.SetDefault("gamification.max_attempt_retries", 3)
	v.SetDefault("notify.timeout", 10)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if c.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if c.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if c.Database.Redis.Host == "" {
		return fmt.Errorf("database.redis.host is required")
	}
	if c.Gamification.ConfigCacheTTL <= 0 {
		return fmt.Errorf("gamification.config_cache_ttl must be positive")
	}
	if c.Gamification.LeaderboardMaxLimit <= 0 {
		return fmt.Errorf("gamification.leaderboard_max_limit must be positive")
	}
	if c.Gamification.LeaderboardDefaultLimit <= 0 || c.Gamification.LeaderboardDefaultLimit > c.Gamification.LeaderboardMaxLimit {
		return fmt.Errorf("gamification.leaderboard_default_limit must be between 1 and leaderboard_max_limit")
	}
	if c.Gamification.MaxAttemptRetries < 1 {
		return fmt.Errorf("gamification.max_attempt_retries must be at least 1")
	}
	if c.Scheduler.Enabled {
		if c.Scheduler.ReengagementMultiplier != "2x" && c.Scheduler.ReengagementMultiplier != "3x" {
			return fmt.Errorf("scheduler.reengagement_multiplier must be 2x or 3x")
		}
		if c.Scheduler.ReengagementDurationHours <= 0 {
			return fmt.Errorf("scheduler.reengagement_duration_hours must be positive")
		}
	}
	if c.Notify.Enabled && c.Notify.WebhookURL == "" {
		return fmt.Errorf("notify.webhook_url is required when notify is enabled")
	}

	return nil
}

// GetLocation returns the timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// CacheTTL returns the config cache TTL as a duration.
func (c *GamificationConfig) CacheTTL() time.Duration {
	return time.Duration(c.ConfigCacheTTL) * time.Second
}

// ClampLeaderboardLimit applies the default and hard maximum to a requested leaderboard size.
func (c *GamificationConfig) ClampLeaderboardLimit(limit int) int {
	if limit <= 0 {
		return c.LeaderboardDefaultLimit
	}
	if limit > c.LeaderboardMaxLimit {
		return c.LeaderboardMaxLimit
	}
	return limit
}
