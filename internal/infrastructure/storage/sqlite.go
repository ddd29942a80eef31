package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SQLiteStore provides SQLite access for the audit ledger and run history.
// It implements LedgerStore and RunRepository.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time checks
var (
	_ LedgerStore           = (*SQLiteStore)(nil)
	_ RunRepository         = (*SQLiteStore)(nil)
	_ ledger.LinkedAppender = (*SQLiteStore)(nil)
	_ ledger.LastHasher     = (*SQLiteStore)(nil)
)

// sqliteDSN makes every transaction take the write lock at BEGIN so two
// writers cannot both read the same tip. Lock waits block up to the busy
// timeout instead of failing with SQLITE_BUSY.
func sqliteDSN(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_txlock=immediate&_busy_timeout=5000"
}

// NewSQLiteStore opens the database at dbPath and applies pending migrations
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", sqliteDSN(dbPath))
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Committed entries must survive a crash once Append returns
	if _, err := db.Exec("PRAGMA synchronous = FULL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// runMigrations applies the embedded goose migrations
func (s *SQLiteStore) runMigrations() error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	before, _ := goose.GetDBVersion(s.db)
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	after, err := goose.GetDBVersion(s.db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if after != before {
		s.logger.Info("Applied database migrations", "from", before, "to", after)
	}
	return nil
}

// DB exposes the underlying handle for maintenance tooling
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertLedgerRow(ctx context.Context, db execer, entry ledger.Entry) error {
	r := toRecord(entry)
	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_ledger
		(timestamp, event_type, subject_id, operator, amount, payload_hash, previous_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.Timestamp, r.EventType, r.SubjectID, r.Operator, r.Amount, r.PayloadHash, r.PreviousHash)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lastLedgerHash(ctx context.Context, db rowQuerier) (string, error) {
	var hash string
	err := db.QueryRowContext(ctx, `SELECT payload_hash FROM audit_ledger ORDER BY id DESC LIMIT 1`).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read ledger tip: %w", err)
	}
	return hash, nil
}

// Append inserts one ledger row
func (s *SQLiteStore) Append(ctx context.Context, entry ledger.Entry) error {
	return insertLedgerRow(ctx, s.db, entry)
}

// AppendNext reads the tip and inserts the linked entry in one IMMEDIATE
// transaction, so writers in other processes queue behind it
func (s *SQLiteStore) AppendNext(ctx context.Context, build func(previousHash string) ledger.Entry) (ledger.Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to begin ledger transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prev, err := lastLedgerHash(ctx, tx)
	if err != nil {
		return ledger.Entry{}, err
	}
	entry := build(prev)
	if err := insertLedgerRow(ctx, tx, entry); err != nil {
		return ledger.Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to commit ledger entry: %w", err)
	}
	return entry, nil
}

// LastHash returns the newest payload hash, or GenesisHash when empty
func (s *SQLiteStore) LastHash(ctx context.Context) (string, error) {
	return lastLedgerHash(ctx, s.db)
}

// ReadAll returns every ledger row in insertion order
func (s *SQLiteStore) ReadAll(ctx context.Context) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, event_type, subject_id, operator, amount, payload_hash, previous_hash
		FROM audit_ledger ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []ledgerRecord
	for rows.Next() {
		var r ledgerRecord
		if err := rows.Scan(&r.Timestamp, &r.EventType, &r.SubjectID, &r.Operator, &r.Amount, &r.PayloadHash, &r.PreviousHash); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return recordsToEntries(records)
}

// StartRun records the start of a reconciliation run
func (s *SQLiteStore) StartRun(ctx context.Context, run *ReconciliationRun) error {
	status := run.Status
	if status == "" {
		status = RunStatusRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_runs (id, source, started_at, dry_run, status)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.Source, run.StartedAt.UTC(), run.DryRun, status)
	return err
}

// CompleteRun records the completion of a reconciliation run
func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, stats RunStats) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reconciliation_runs
		SET completed_at = CURRENT_TIMESTAMP,
		    payments = ?,
		    auto_posted = ?,
		    review = ?,
		    unmatched = ?,
		    errors = ?,
		    status = ?
		WHERE id = ?
	`, stats.Payments, stats.AutoPosted, stats.Review, stats.Unmatched, stats.Errors, RunStatusCompleted, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

const runColumns = `id, source, started_at, completed_at, dry_run, payments, auto_posted, review, unmatched, errors, status`

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*ReconciliationRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM reconciliation_runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns recent runs, newest first
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]ReconciliationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM reconciliation_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []ReconciliationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*ReconciliationRun, error) {
	var run ReconciliationRun
	var completed sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.Source,
		&run.StartedAt,
		&completed,
		&run.DryRun,
		&run.Payments,
		&run.AutoPosted,
		&run.Review,
		&run.Unmatched,
		&run.Errors,
		&run.Status,
	)
	if err != nil {
		return nil, err
	}
	if completed.Valid {
		t := completed.Time
		run.CompletedAt = &t
	}
	return &run, nil
}
