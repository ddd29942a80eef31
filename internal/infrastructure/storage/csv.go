package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
)

// CSVStore keeps the ledger in a flat CSV file with the audit-tool header
// Timestamp,Event_Type,Subject_ID,Operator,Amount,Payload_Hash,Previous_Hash.
// Each append is flushed and fsynced before returning.
//
// Stores opened on the same file within one process share a lock, so their
// chains cannot fork. There is no lock across processes; use a database
// backend when several processes write one ledger.
type CSVStore struct {
	mu   *sync.Mutex
	path string
}

// Compile-time checks
var (
	_ LedgerStore           = (*CSVStore)(nil)
	_ ledger.LinkedAppender = (*CSVStore)(nil)
)

// csvLocks maps an absolute ledger path to its process-wide mutex
var csvLocks sync.Map

func csvLock(path string) *sync.Mutex {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	mu, _ := csvLocks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// NewCSVStore opens or creates the ledger file at path
func NewCSVStore(path string) (*CSVStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	s := &CSVStore{mu: csvLock(path), path: path}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist) || (err == nil && info.Size() == 0):
		if err := s.writeHeader(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat ledger file: %w", err)
	default:
		if err := s.checkHeader(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Path returns the ledger file path
func (s *CSVStore) Path() string {
	return s.path
}

func (s *CSVStore) writeHeader() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create ledger file: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write(ledger.Columns); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

func (s *CSVStore) checkHeader() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open ledger file: %w", err)
	}
	defer func() { _ = f.Close() }()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		return fmt.Errorf("failed to read ledger header: %w", err)
	}
	if !slices.Equal(header, ledger.Columns) {
		return fmt.Errorf("unexpected ledger header %v", header)
	}
	return nil
}

// Append writes one row and syncs the file
func (s *CSVStore) Append(ctx context.Context, entry ledger.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendRow(entry)
}

// AppendNext reads the last row and appends the linked entry without
// releasing the file lock
func (s *CSVStore) AppendNext(ctx context.Context, build func(previousHash string) ledger.Entry) (ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAll()
	if err != nil {
		return ledger.Entry{}, err
	}
	prev := ledger.GenesisHash
	if n := len(entries); n > 0 {
		prev = entries[n-1].PayloadHash
	}
	entry := build(prev)
	if err := s.appendRow(entry); err != nil {
		return ledger.Entry{}, err
	}
	return entry, nil
}

func (s *CSVStore) appendRow(entry ledger.Entry) error {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write(toRecord(entry).values()); err != nil {
		return fmt.Errorf("failed to write ledger row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush ledger row: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger file: %w", err)
	}
	return nil
}

// ReadAll parses every row after the header
func (s *CSVStore) ReadAll(ctx context.Context) ([]ledger.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

func (s *CSVStore) readAll() ([]ledger.Entry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(ledger.Columns)

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return []ledger.Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read ledger header: %w", err)
	}

	var records []ledgerRecord
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger row %d: %w", len(records), err)
		}
		rec, err := recordFromValues(row)
		if err != nil {
			return nil, fmt.Errorf("ledger row %d: %w", len(records), err)
		}
		records = append(records, rec)
	}

	return recordsToEntries(records)
}

// Close is a no-op; the file is opened per operation
func (s *CSVStore) Close() error {
	return nil
}
