package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	Port        string `koanf:"PORT"`
	DatabaseURL string `koanf:"DATABASE_URL"`
	// Environment is "development" or "production".
	Environment string `koanf:"ENVIRONMENT"`
	LogLevel    string `koanf:"LOG_LEVEL"`
	FrontendURL string `koanf:"FRONTEND_URL"`
	Timezone    string `koanf:"TIMEZONE"`

	JWTSecret        string `koanf:"JWT_SECRET"`
	AccessTTLMinutes int    `koanf:"JWT_ACCESS_TTL_MINUTES"`
	RefreshTTLHours  int    `koanf:"REFRESH_TTL_HOURS"`

	// DataEncryptionKey encrypts TOTP secrets at rest. Must be 32 bytes when set.
	DataEncryptionKey string `koanf:"DATA_ENCRYPTION_KEY"`

	RateLimitPerMinute int `koanf:"RATE_LIMIT_PER_MINUTE"`

	AI  AIConfig  `koanf:",squash"`
	NLP NLPConfig `koanf:",squash"`

	ResendAPIKey string `koanf:"RESEND_API_KEY"`
	EmailFrom    string `koanf:"EMAIL_FROM"`
}

// AIConfig configures the hosted model used by the "ai" parsing engine.
type AIConfig struct {
	APIKey          string  `koanf:"ANTHROPIC_API_KEY"`
	Model           string  `koanf:"ANTHROPIC_MODEL"`
	BaseURL         string  `koanf:"ANTHROPIC_BASE_URL"`
	DailyQuota      int     `koanf:"AI_DAILY_QUOTA"`
	CacheTTLSeconds int     `koanf:"AI_CACHE_TTL_SECONDS"`
	AutoThreshold   float64 `koanf:"AI_AUTO_THRESHOLD"`
}

type NLPConfig struct {
	// ConfigPath is an optional JSON keyword file used when no config row exists.
	ConfigPath       string `koanf:"NLP_CONFIG_PATH"`
	ConfigTTLSeconds int    `koanf:"NLP_CONFIG_TTL_SECONDS"`
}

// Load reads .env (if present) and the process environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Ho_Chi_Minh"
	}
	if c.AccessTTLMinutes <= 0 {
		c.AccessTTLMinutes = 60
	}
	if c.RefreshTTLHours <= 0 {
		c.RefreshTTLHours = 168
	}
	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = 100
	}
	if c.AI.Model == "" {
		c.AI.Model = "claude-3-5-haiku-20241022"
	}
	if c.AI.BaseURL == "" {
		c.AI.BaseURL = "https://api.anthropic.com"
	}
	if c.AI.DailyQuota <= 0 {
		c.AI.DailyQuota = 20
	}
	if c.AI.CacheTTLSeconds <= 0 {
		c.AI.CacheTTLSeconds = 300
	}
	if c.AI.AutoThreshold <= 0 {
		c.AI.AutoThreshold = 0.6
	}
	if c.NLP.ConfigTTLSeconds <= 0 {
		c.NLP.ConfigTTLSeconds = 60
	}
	if c.EmailFrom == "" {
		c.EmailFrom = "So Chi Tieu <noreply@sochitieu.app>"
	}
}

// Validate reports every missing or malformed required key.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL environment variable is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	if c.DataEncryptionKey != "" && len(c.DataEncryptionKey) != 32 {
		errs = append(errs, errors.New("DATA_ENCRYPTION_KEY must be exactly 32 characters"))
	}
	if c.Environment != "development" && c.Environment != "production" {
		errs = append(errs, fmt.Errorf("ENVIRONMENT must be development or production, got %q", c.Environment))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Location returns the configured time zone; Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLMinutes) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLHours) * time.Hour
}

func (c *Config) AICacheTTL() time.Duration {
	return time.Duration(c.AI.CacheTTLSeconds) * time.Second
}

func (c *Config) NLPConfigTTL() time.Duration {
	return time.Duration(c.NLP.ConfigTTLSeconds) * time.Second
}
