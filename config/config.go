// Package config loads service configuration from defaults, an optional
// YAML file, a .env file and LEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
	// Demo mounts the scenario loader endpoints.
	Demo bool `mapstructure:"demo"`
}

func (c ServerConfig) Addr() string { return fmt.Sprintf(":%d", c.Port) }

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LedgerConfig struct {
	// MonthlyCredit is a decimal string, "2.5" by default.
	MonthlyCredit   string `mapstructure:"monthly_credit"`
	TransitionMonth int    `mapstructure:"transition_month"`
	ExpirationMonth int    `mapstructure:"expiration_month"`
	Workers         int    `mapstructure:"workers"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// Credit parses MonthlyCredit.
func (c LedgerConfig) Credit() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.MonthlyCredit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger.monthly_credit %q: %w", c.MonthlyCredit, err)
	}
	return d, nil
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads configuration. Priority: environment > config file > defaults.
// An empty path looks for ./config.yaml and tolerates its absence.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.demo", false)

	v.SetDefault("db.path", "./data/leave.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "10m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("ledger.monthly_credit", "2.5")
	v.SetDefault("ledger.transition_month", 1)
	v.SetDefault("ledger.expiration_month", 6)
	v.SetDefault("ledger.workers", 4)
	v.SetDefault("ledger.max_retries", 5)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "1h")
}

// Validate checks the values the service cannot run without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be within 1-65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("config: db.path is required")
	}
	credit, err := c.Ledger.Credit()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if credit.IsNegative() {
		return fmt.Errorf("config: ledger.monthly_credit must not be negative")
	}
	for name, m := range map[string]int{
		"ledger.transition_month": c.Ledger.TransitionMonth,
		"ledger.expiration_month": c.Ledger.ExpirationMonth,
	} {
		if m < 1 || m > 12 {
			return fmt.Errorf("config: %s must be within 1-12, got %d", name, m)
		}
	}
	if c.Ledger.Workers < 1 {
		return fmt.Errorf("config: ledger.workers must be positive, got %d", c.Ledger.Workers)
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("config: scheduler.interval must be positive")
	}
	return nil
}
