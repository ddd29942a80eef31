// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg, err := config.LoadOrEnv()
//	engine := matcher.NewMatcher(cfg.Matching.MatcherConfig(), resolver, logger)
//	backend := cfg.Storage.Driver
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
	"github.com/eshaffer321/smartcash-reconciler/internal/domain/matcher"
)

// Config represents the entire application configuration
type Config struct {
	Matching      MatchingConfig      `yaml:"matching"`
	Aliases       AliasesConfig       `yaml:"aliases"`
	Ledger        LedgerConfig        `yaml:"ledger"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// MatchingConfig holds scoring weights and tier thresholds
type MatchingConfig struct {
	AmountWeight        float64  `yaml:"amount_weight"`
	NameWeight          float64  `yaml:"name_weight"`
	FeeTolerance        float64  `yaml:"fee_tolerance"`
	NearAmountScore     float64  `yaml:"near_amount_score"`
	AutoPostThreshold   float64  `yaml:"auto_post_threshold"`
	HighReviewThreshold float64  `yaml:"high_review_threshold"`
	LowReviewThreshold  float64  `yaml:"low_review_threshold"`
	CorporateSuffixes   []string `yaml:"corporate_suffixes"`
}

// MatcherConfig converts to the engine's config type
func (m MatchingConfig) MatcherConfig() matcher.Config {
	return matcher.Config{
		AmountWeight:        m.AmountWeight,
		NameWeight:          m.NameWeight,
		FeeTolerance:        m.FeeTolerance,
		NearAmountScore:     m.NearAmountScore,
		AutoPostThreshold:   m.AutoPostThreshold,
		HighReviewThreshold: m.HighReviewThreshold,
		LowReviewThreshold:  m.LowReviewThreshold,
		CorporateSuffixes:   m.CorporateSuffixes,
	}
}

// AliasesConfig holds the payer alias table.
// Table entries are merged under entries from File; File wins on conflict.
type AliasesConfig struct {
	File  string            `yaml:"file"`
	Table map[string]string `yaml:"table"`
}

// LedgerConfig holds audit ledger settings
type LedgerConfig struct {
	Operator string `yaml:"operator"`
}

// StorageConfig holds ledger backend configuration
type StorageConfig struct {
	Driver string      `yaml:"driver"` // memory, csv, sqlite, postgres, redis
	Path   string      `yaml:"path"`   // csv file or sqlite database
	DSN    string      `yaml:"dsn"`    // postgres
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds the Prometheus listener address; empty disables it
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration
func Default() *Config {
	m := matcher.DefaultConfig()
	return &Config{
		Matching: MatchingConfig{
			AmountWeight:        m.AmountWeight,
			NameWeight:          m.NameWeight,
			FeeTolerance:        m.FeeTolerance,
			NearAmountScore:     m.NearAmountScore,
			AutoPostThreshold:   m.AutoPostThreshold,
			HighReviewThreshold: m.HighReviewThreshold,
			LowReviewThreshold:  m.LowReviewThreshold,
			CorporateSuffixes:   m.CorporateSuffixes,
		},
		Ledger: LedgerConfig{
			Operator: ledger.SystemOperator,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   "smartcash_ledger.db",
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "console",
			},
		},
	}
}

// Load reads and parses the config file. Keys absent from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${SMARTCASH_POSTGRES_DSN})
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := Default()
	m := &cfg.Matching

	m.AmountWeight = getEnvFloat("SMARTCASH_AMOUNT_WEIGHT", m.AmountWeight)
	m.NameWeight = getEnvFloat("SMARTCASH_NAME_WEIGHT", m.NameWeight)
	m.FeeTolerance = getEnvFloat("SMARTCASH_FEE_TOLERANCE", m.FeeTolerance)
	m.AutoPostThreshold = getEnvFloat("SMARTCASH_AUTO_POST_THRESHOLD", m.AutoPostThreshold)
	m.HighReviewThreshold = getEnvFloat("SMARTCASH_HIGH_REVIEW_THRESHOLD", m.HighReviewThreshold)
	m.LowReviewThreshold = getEnvFloat("SMARTCASH_LOW_REVIEW_THRESHOLD", m.LowReviewThreshold)

	cfg.Aliases.File = getEnv("SMARTCASH_ALIAS_FILE", "")
	cfg.Ledger.Operator = getEnv("SMARTCASH_OPERATOR", cfg.Ledger.Operator)

	cfg.Storage = StorageConfig{
		Driver: getEnv("SMARTCASH_STORAGE_DRIVER", cfg.Storage.Driver),
		Path:   getEnv("SMARTCASH_DB_PATH", cfg.Storage.Path),
		DSN:    getEnv("SMARTCASH_POSTGRES_DSN", os.Getenv("DATABASE_URL")),
		Redis: RedisConfig{
			Addr:     getEnv("SMARTCASH_REDIS_ADDR", ""),
			Password: os.Getenv("SMARTCASH_REDIS_PASSWORD"),
			DB:       getEnvInt("SMARTCASH_REDIS_DB", 0),
			Key:      getEnv("SMARTCASH_REDIS_KEY", ""),
		},
	}

	cfg.Observability = ObservabilityConfig{
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", cfg.Observability.Logging.Level),
			Format: getEnv("LOG_FORMAT", cfg.Observability.Logging.Format),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ""),
		},
	}

	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() (*Config, error) {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath loads the file at path, or the environment when the file
// does not exist. A file that exists but cannot be read or parsed is an error.
func LoadOrEnvWithPath(path string) (*Config, error) {
	cfg, err := Load(path)
	switch {
	case err == nil:
		return cfg, nil
	case errors.Is(err, fs.ErrNotExist):
		return LoadFromEnv(), nil
	default:
		return nil, err
	}
}

// Validate checks the matching parameters and storage driver
func (c *Config) Validate() error {
	if err := c.Matching.MatcherConfig().Validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}
	switch strings.ToLower(c.Storage.Driver) {
	case "memory", "csv", "sqlite", "postgres", "redis":
	default:
		return fmt.Errorf("storage: unknown driver %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Ledger.Operator) == "" {
		return fmt.Errorf("ledger: operator must not be empty")
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if result, err := strconv.Atoi(val); err == nil {
			return result
		}
	}
	return fallback
}

// getEnvFloat retrieves a float environment variable with a fallback default
func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if result, err := strconv.ParseFloat(val, 64); err == nil {
			return result
		}
	}
	return fallback
}
