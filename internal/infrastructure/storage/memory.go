package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
)

// MemoryStore is an in-memory ledger and run store.
// It backs dry runs and tests; nothing survives the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []ledger.Entry
	runs    map[string]*ReconciliationRun

	// Error injection for testing error paths
	AppendErr   error
	ReadErr     error
	StartRunErr error
}

// Compile-time checks
var (
	_ LedgerStore           = (*MemoryStore)(nil)
	_ RunRepository         = (*MemoryStore)(nil)
	_ ledger.LinkedAppender = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]*ReconciliationRun),
	}
}

// Append adds an entry
func (m *MemoryStore) Append(_ context.Context, entry ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

// AppendNext links and appends under the store lock
func (m *MemoryStore) AppendNext(_ context.Context, build func(previousHash string) ledger.Entry) (ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return ledger.Entry{}, m.ReadErr
	}
	if m.AppendErr != nil {
		return ledger.Entry{}, m.AppendErr
	}
	prev := ledger.GenesisHash
	if n := len(m.entries); n > 0 {
		prev = m.entries[n-1].PayloadHash
	}
	entry := build(prev)
	m.entries = append(m.entries, entry)
	return entry, nil
}

// ReadAll returns a copy of all entries
func (m *MemoryStore) ReadAll(_ context.Context) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	out := make([]ledger.Entry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

// Mutate edits a stored entry in place. Tests use it to simulate tampering.
func (m *MemoryStore) Mutate(row int, fn func(*ledger.Entry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.entries[row])
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}

// StartRun records the start of a run
func (m *MemoryStore) StartRun(_ context.Context, run *ReconciliationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartRunErr != nil {
		return m.StartRunErr
	}
	stored := *run
	if stored.Status == "" {
		stored.Status = RunStatusRunning
	}
	m.runs[run.ID] = &stored
	return nil
}

// CompleteRun records the outcome of a run
func (m *MemoryStore) CompleteRun(_ context.Context, runID string, stats RunStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.RunStats = stats
	run.Status = RunStatusCompleted
	return nil
}

// GetRun retrieves a run by ID
func (m *MemoryStore) GetRun(_ context.Context, runID string) (*ReconciliationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	out := *run
	return &out, nil
}

// ListRuns returns recent runs, newest first
func (m *MemoryStore) ListRuns(_ context.Context, limit int) ([]ReconciliationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runs := make([]ReconciliationRun, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, *r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID > runs[j].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
