package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"flowstore/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Rollback  RollbackConfig  `mapstructure:"rollback"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Retention RetentionConfig `mapstructure:"retention"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// RollbackConfig governs how empty windows widen into history.
type RollbackConfig struct {
	Lookback      time.Duration `mapstructure:"lookback"`
	Timezone      string        `mapstructure:"timezone"`
	SessionHour   int           `mapstructure:"session_hour"`
	SessionMinute int           `mapstructure:"session_minute"`
}

// Location resolves the configured timezone.
func (c RollbackConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("rollback.timezone: %w", err)
	}
	return loc, nil
}

// BroadcastConfig sizes the change-event fan-out.
type BroadcastConfig struct {
	Workers          int         `mapstructure:"workers"`
	QueueSize        int         `mapstructure:"queue_size"`
	PowerAlertsOnSet bool        `mapstructure:"power_alerts_on_set"`
	Kafka            KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig covers the optional Kafka mirror of broadcast events.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RetentionConfig bounds how much event history the sweeper keeps. The
// advisory lock key keeps concurrent replicas from sweeping simultaneously.
type RetentionConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxAge          time.Duration `mapstructure:"max_age"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// AlertingConfig routes high-strength power alerts to chat channels.
type AlertingConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	MinStrength int            `mapstructure:"min_strength"`
	Timeout     time.Duration  `mapstructure:"timeout"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLOWSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "flowstore")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("rollback.lookback", "168h")
	v.SetDefault("rollback.timezone", "America/New_York")
	v.SetDefault("rollback.session_hour", 9)
	v.SetDefault("rollback.session_minute", 30)

	v.SetDefault("broadcast.workers", 4)
	v.SetDefault("broadcast.queue_size", 1024)
	v.SetDefault("broadcast.power_alerts_on_set", true)
	v.SetDefault("broadcast.kafka.enabled", false)
	v.SetDefault("broadcast.kafka.topic", "flowstore.events")
	v.SetDefault("broadcast.kafka.write_timeout", "5s")

	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.max_age", "2160h")
	v.SetDefault("retention.sweep_interval", "1h")
	v.SetDefault("retention.advisory_lock_key", int64(0x666c6f77))

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.min_strength", 5)
	v.SetDefault("alerting.timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Rollback.Lookback <= 0 {
		return fmt.Errorf("rollback.lookback must be greater than zero")
	}
	if c.Rollback.SessionHour < 0 || c.Rollback.SessionHour > 23 {
		return fmt.Errorf("rollback.session_hour must be within 0..23")
	}
	if c.Rollback.SessionMinute < 0 || c.Rollback.SessionMinute > 59 {
		return fmt.Errorf("rollback.session_minute must be within 0..59")
	}
	if _, err := c.Rollback.Location(); err != nil {
		return err
	}
	if c.Broadcast.Workers <= 0 {
		return fmt.Errorf("broadcast.workers must be greater than zero")
	}
	if c.Broadcast.QueueSize <= 0 {
		return fmt.Errorf("broadcast.queue_size must be greater than zero")
	}
	if c.Broadcast.Kafka.Enabled {
		if len(c.Broadcast.Kafka.Brokers) == 0 {
			return fmt.Errorf("broadcast.kafka.brokers must be set when kafka is enabled")
		}
		if c.Broadcast.Kafka.Topic == "" {
			return fmt.Errorf("broadcast.kafka.topic must be set when kafka is enabled")
		}
	}
	if c.Retention.Enabled {
		if c.Retention.MaxAge <= 0 {
			return fmt.Errorf("retention.max_age must be greater than zero")
		}
		if c.Retention.SweepInterval <= 0 {
			return fmt.Errorf("retention.sweep_interval must be greater than zero")
		}
	}
	if c.Alerting.Enabled {
		if c.Alerting.MinStrength < 0 {
			return fmt.Errorf("alerting.min_strength cannot be negative")
		}
		if c.Alerting.Telegram.Enabled {
			if c.Alerting.Telegram.BotToken == "" {
				return fmt.Errorf("alerting.telegram.bot_token must be set")
			}
			if c.Alerting.Telegram.ChatID == "" {
				return fmt.Errorf("alerting.telegram.chat_id must be set")
			}
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
