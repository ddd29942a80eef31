package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
)

// ErrRunNotFound is returned when a reconciliation run ID is unknown
var ErrRunNotFound = errors.New("reconciliation run not found")

// LedgerStore is a ledger backend that owns a connection or file handle
type LedgerStore interface {
	ledger.Store
	io.Closer
}

// RunRepository tracks reconciliation batch runs.
// Backends that support it (SQLite, Postgres, memory) implement it alongside LedgerStore.
type RunRepository interface {
	// StartRun records the start of a run; run.ID must already be set
	StartRun(ctx context.Context, run *ReconciliationRun) error

	// CompleteRun records the outcome counts of a run
	CompleteRun(ctx context.Context, runID string, stats RunStats) error

	// GetRun retrieves a run by ID
	GetRun(ctx context.Context, runID string) (*ReconciliationRun, error)

	// ListRuns returns the most recent runs, newest first
	ListRuns(ctx context.Context, limit int) ([]ReconciliationRun, error)
}

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
)

// RunStats are the outcome counts of one reconciliation batch
type RunStats struct {
	Payments   int `json:"payments"`
	AutoPosted int `json:"auto_posted"`
	Review     int `json:"review"`
	Unmatched  int `json:"unmatched"`
	Errors     int `json:"errors"`
}

// ReconciliationRun represents one batch run record
type ReconciliationRun struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DryRun      bool       `json:"dry_run"`
	Status      string     `json:"status"`
	RunStats
}

// Supported backend names
const (
	BackendMemory   = "memory"
	BackendCSV      = "csv"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)
