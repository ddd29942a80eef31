// Package storage provides the ledger and run-history backends.
//
// Every backend persists ledger rows as text in the audit column order so
// the hash chain verifies identically no matter where it is stored.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Options selects and configures a backend
type Options struct {
	Backend string // memory, csv, sqlite, postgres, redis
	Path    string // csv file or sqlite database path
	DSN     string // postgres connection string
	Redis   RedisOptions
	Logger  *slog.Logger
}

// Open creates the configured backend.
// Callers that want run history can type-assert the result to RunRepository.
func Open(ctx context.Context, opts Options) (LedgerStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	logger.Debug("Opening ledger store", "backend", backend, "path", opts.Path)

	switch backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendCSV:
		if opts.Path == "" {
			return nil, fmt.Errorf("csv backend requires a path")
		}
		return NewCSVStore(opts.Path)
	case BackendSQLite, "":
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite backend requires a path")
		}
		return NewSQLiteStore(opts.Path, logger)
	case BackendPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres backend requires a dsn")
		}
		return NewPostgresStore(opts.DSN)
	case BackendRedis:
		if opts.Redis.Addr == "" {
			return nil, fmt.Errorf("redis backend requires an address")
		}
		return NewRedisStore(ctx, opts.Redis)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
