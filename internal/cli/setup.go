package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/alias"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/config"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/logging"
	"github.com/eshaffer321/smartcash-reconciler/internal/infrastructure/storage"
)

// LoadConfig reads the config file, falling back to the environment, and validates it
func LoadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrEnvWithPath(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the command logger; verbose forces debug level
func NewLogger(cfg *config.Config, verbose bool, system string) *slog.Logger {
	loggingCfg := cfg.Observability.Logging
	if verbose {
		loggingCfg.Level = "debug"
	}
	return logging.NewLoggerWithSystem(loggingCfg, system)
}

// StorageOptions maps the storage config onto backend options
func StorageOptions(cfg config.StorageConfig, logger *slog.Logger) storage.Options {
	return storage.Options{
		Backend: cfg.Driver,
		Path:    cfg.Path,
		DSN:     cfg.DSN,
		Redis: storage.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
		},
		Logger: logger,
	}
}

// OpenStore opens the configured ledger backend
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.LedgerStore, error) {
	store, err := storage.Open(ctx, StorageOptions(cfg.Storage, logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s ledger store: %w", cfg.Storage.Driver, err)
	}
	return store, nil
}

// LoadAliases returns the alias resolver. When an alias file is configured
// the loader is returned too so the caller can watch it.
func LoadAliases(cfg *config.Config, logger *slog.Logger) (*alias.Resolver, *config.AliasLoader, error) {
	if cfg.Aliases.File == "" {
		return alias.NewResolver(cfg.Aliases.Table), nil, nil
	}
	loader, err := config.NewAliasLoader(cfg.Aliases.File, cfg.Aliases.Table, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load aliases: %w", err)
	}
	return loader.Resolver(), loader, nil
}
