// Package config provides application configuration loaded from the environment,
// an optional config file and a .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// DatabaseConfig holds connection settings. URL selects the storage mode:
// sqlite URLs give the embedded store, postgres URLs the shared server.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Debug           bool          `mapstructure:"debug"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev          bool   `mapstructure:"dev"`
	Migrations   bool   `mapstructure:"migrations"`
	Seed         bool   `mapstructure:"seed"`
	BusinessType string `mapstructure:"business_type"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig holds Prometheus settings. An empty Addr disables the listener.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
	Addr      string `mapstructure:"addr"`
}

// env maps each config key to the variable that overrides it.
var env = map[string]string{
	"database.url":               "DATABASE_URL",
	"database.max_open_conns":    "DB_MAX_OPEN_CONNS",
	"database.max_idle_conns":    "DB_MAX_IDLE_CONNS",
	"database.conn_max_lifetime": "DB_CONN_MAX_LIFETIME",
	"database.debug":             "DB_DEBUG",
	"app.dev":                    "DEV",
	"app.migrations":             "MIGRATIONS",
	"app.seed":                   "DB_SEED",
	"app.business_type":          "BUSINESS_TYPE",
	"log.level":                  "LOG_LEVEL",
	"log.format":                 "LOG_FORMAT",
	"log.output":                 "LOG_OUTPUT",
	"log.file_path":              "LOG_FILE",
	"log.max_size":               "LOG_MAX_SIZE",
	"log.max_backups":            "LOG_MAX_BACKUPS",
	"log.max_age":                "LOG_MAX_AGE",
	"log.compress":               "LOG_COMPRESS",
	"metrics.namespace":          "METRICS_NAMESPACE",
	"metrics.addr":               "METRICS_ADDR",
}

// Load reads configuration. Precedence: environment > config file named by
// LEDGER_CONFIG > .env file > defaults. Defaults suit local development.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	for key, name := range env {
		if err := v.BindEnv(key, name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", name, err)
		}
	}
	if err := v.BindEnv("config_file", "LEDGER_CONFIG"); err != nil {
		return nil, fmt.Errorf("bind LEDGER_CONFIG: %w", err)
	}
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.App.BusinessType = strings.ToLower(strings.TrimSpace(cfg.App.BusinessType))
	if _, ok := LookupProfile(cfg.App.BusinessType); !ok {
		return nil, fmt.Errorf("unknown BUSINESS_TYPE %q (want one of %s)", cfg.App.BusinessType, strings.Join(ProfileNames(), ", "))
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "sqlite:///data/store.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.debug", false)
	v.SetDefault("app.dev", true)
	v.SetDefault("app.migrations", false)
	v.SetDefault("app.seed", false)
	v.SetDefault("app.business_type", "therapy")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "logs/ledger.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("metrics.namespace", "ledger")
	v.SetDefault("metrics.addr", "")
}

// Profile returns the business profile selected by App.BusinessType.
func (c *Config) Profile() BusinessProfile {
	p, _ := LookupProfile(c.App.BusinessType)
	return p
}
