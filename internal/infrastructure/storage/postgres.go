package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
)

// runRecord is the gorm model for reconciliation_runs
type runRecord struct {
	ID          string `gorm:"primaryKey;size:36"`
	Source      string
	StartedAt   time.Time `gorm:"index;not null"`
	CompletedAt *time.Time
	DryRun      bool
	Payments    int
	AutoPosted  int
	Review      int
	Unmatched   int
	Errors      int
	Status      string `gorm:"size:16;not null;default:running"`
}

func (runRecord) TableName() string {
	return "reconciliation_runs"
}

func (r runRecord) toRun() ReconciliationRun {
	return ReconciliationRun{
		ID:          r.ID,
		Source:      r.Source,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		DryRun:      r.DryRun,
		Status:      r.Status,
		RunStats: RunStats{
			Payments:   r.Payments,
			AutoPosted: r.AutoPosted,
			Review:     r.Review,
			Unmatched:  r.Unmatched,
			Errors:     r.Errors,
		},
	}
}

// PostgresStore keeps the ledger and run history in PostgreSQL through gorm
type PostgresStore struct {
	db *gorm.DB
}

// Compile-time checks
var (
	_ LedgerStore           = (*PostgresStore)(nil)
	_ RunRepository         = (*PostgresStore)(nil)
	_ ledger.LinkedAppender = (*PostgresStore)(nil)
	_ ledger.LastHasher     = (*PostgresStore)(nil)
)

// NewPostgresStore connects with dsn and migrates the schema
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}

	if err := db.AutoMigrate(&ledgerRecord{}, &runRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate postgres schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// DB exposes the gorm handle
func (s *PostgresStore) DB() *gorm.DB {
	return s.db
}

// Append inserts one ledger row; the commit is durable when Create returns
func (s *PostgresStore) Append(ctx context.Context, entry ledger.Entry) error {
	rec := toRecord(entry)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

// ReadAll returns every ledger row in insertion order
func (s *PostgresStore) ReadAll(ctx context.Context) ([]ledger.Entry, error) {
	var records []ledgerRecord
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	return recordsToEntries(records)
}

// AppendNext locks the ledger table against other writers, reads the tip
// and inserts the linked entry in one transaction. Readers are not blocked.
func (s *PostgresStore) AppendNext(ctx context.Context, build func(previousHash string) ledger.Entry) (ledger.Entry, error) {
	var entry ledger.Entry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("LOCK TABLE audit_ledger IN SHARE ROW EXCLUSIVE MODE").Error; err != nil {
			return fmt.Errorf("failed to lock ledger: %w", err)
		}
		prev, err := postgresLastHash(tx)
		if err != nil {
			return err
		}
		entry = build(prev)
		rec := toRecord(entry)
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return ledger.Entry{}, err
	}
	return entry, nil
}

// LastHash returns the newest payload hash, or GenesisHash when empty
func (s *PostgresStore) LastHash(ctx context.Context) (string, error) {
	return postgresLastHash(s.db.WithContext(ctx))
}

func postgresLastHash(db *gorm.DB) (string, error) {
	var records []ledgerRecord
	if err := db.Order("id DESC").Limit(1).Find(&records).Error; err != nil {
		return "", fmt.Errorf("failed to read ledger tip: %w", err)
	}
	if len(records) == 0 {
		return ledger.GenesisHash, nil
	}
	return records[0].PayloadHash, nil
}

// StartRun records the start of a reconciliation run
func (s *PostgresStore) StartRun(ctx context.Context, run *ReconciliationRun) error {
	status := run.Status
	if status == "" {
		status = RunStatusRunning
	}
	rec := runRecord{
		ID:        run.ID,
		Source:    run.Source,
		StartedAt: run.StartedAt.UTC(),
		DryRun:    run.DryRun,
		Status:    status,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// CompleteRun records the outcome of a run
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, stats RunStats) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&runRecord{}).Where("id = ?", runID).Updates(map[string]any{
		"completed_at": now,
		"payments":     stats.Payments,
		"auto_posted":  stats.AutoPosted,
		"review":       stats.Review,
		"unmatched":    stats.Unmatched,
		"errors":       stats.Errors,
		"status":       RunStatusCompleted,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*ReconciliationRun, error) {
	var rec runRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	run := rec.toRun()
	return &run, nil
}

// ListRuns returns recent runs, newest first
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]ReconciliationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []runRecord
	if err := s.db.WithContext(ctx).Order("started_at DESC, id DESC").Limit(limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	runs := make([]ReconciliationRun, len(recs))
	for i, r := range recs {
		runs[i] = r.toRun()
	}
	return runs, nil
}

// Close releases the connection pool
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
