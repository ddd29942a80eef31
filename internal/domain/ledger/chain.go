package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// BreachReason says which check failed at the breached row
type BreachReason string

const (
	BreachLink    BreachReason = "previous_hash mismatch"
	BreachPayload BreachReason = "payload_hash mismatch"
)

// IntegrityReport is the outcome of VerifyIntegrity.
// Rows are zero-based: row 0 is the genesis-linked entry.
type IntegrityReport struct {
	Valid     bool         `json:"valid"`
	Detail    string       `json:"detail"`
	BreachRow int          `json:"breach_row"` // -1 when Valid
	Reason    BreachReason `json:"reason,omitempty"`
	Entries   int          `json:"entries"`
}

// Option configures a Chain
type Option func(*Chain)

// WithLogger sets the chain logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the timestamp source
func WithClock(clock func() time.Time) Option {
	return func(c *Chain) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// Chain is a hash chain over a Store.
//
// Append holds the write lock across read-tip, hash and persist so two
// concurrent appends can never link to the same previous hash. Reads hold
// the read lock and therefore observe either the pre- or post-append log.
//
// The tip is read from the store on every Append, never cached, so other
// writers on the same store are picked up. Stores implementing
// LinkedAppender make the read and the write one transaction; for the rest
// the lock only covers writers inside this process.
type Chain struct {
	mu     sync.RWMutex
	store  Store
	clock  func() time.Time
	logger *slog.Logger
}

// NewChain creates a chain backed by store
func NewChain(store Store, opts ...Option) *Chain {
	c := &Chain{
		store:  store,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append commits one event and returns the persisted entry.
// The entry's PayloadHash is the receipt for the recorded decision.
func (c *Chain) Append(ctx context.Context, ev Event) (Entry, error) {
	if strings.TrimSpace(string(ev.Type)) == "" {
		return Entry{}, fmt.Errorf("ledger append: event type is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	operator := strings.TrimSpace(ev.Operator)
	if operator == "" {
		operator = SystemOperator
	}
	ts := c.clock().UTC()

	build := func(previousHash string) Entry {
		e := Entry{
			Timestamp:    ts,
			EventType:    ev.Type,
			SubjectID:    ev.SubjectID,
			Operator:     operator,
			Amount:       ev.Amount,
			PreviousHash: previousHash,
		}
		e.PayloadHash = ComputeHash(e, previousHash)
		return e
	}

	entry, err := c.write(ctx, build)
	if err != nil {
		c.logger.Error("Ledger append failed",
			"event_type", ev.Type,
			"subject_id", ev.SubjectID,
			"error", err,
		)
		return Entry{}, fmt.Errorf("ledger append: %w", err)
	}

	c.logger.Info("Ledger entry committed",
		"event_type", entry.EventType,
		"subject_id", entry.SubjectID,
		"operator", entry.Operator,
		"amount", entry.Amount.String(),
		"hash", shortHash(entry.PayloadHash),
	)

	return entry, nil
}

// write links and persists one entry. Caller holds the write lock.
func (c *Chain) write(ctx context.Context, build func(previousHash string) Entry) (Entry, error) {
	if la, ok := c.store.(LinkedAppender); ok {
		return la.AppendNext(ctx, build)
	}

	prev, err := c.lastHash(ctx)
	if err != nil {
		return Entry{}, err
	}
	entry := build(prev)
	if err := c.store.Append(ctx, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// lastHash reads the newest committed hash from the store
func (c *Chain) lastHash(ctx context.Context) (string, error) {
	if lh, ok := c.store.(LastHasher); ok {
		return lh.LastHash(ctx)
	}
	entries, err := c.store.ReadAll(ctx)
	if err != nil {
		return "", err
	}
	if n := len(entries); n > 0 {
		return entries[n-1].PayloadHash, nil
	}
	return GenesisHash, nil
}

// Tip returns the hash the next entry will link to
func (c *Chain) Tip(ctx context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tip, err := c.lastHash(ctx)
	if err != nil {
		return "", fmt.Errorf("ledger tip: %w", err)
	}
	return tip, nil
}

// VerifyIntegrity walks the whole chain and reports the first broken row.
// It never writes to the store. An error means the store could not be read,
// not that the chain is broken.
func (c *Chain) VerifyIntegrity(ctx context.Context) (IntegrityReport, error) {
	c.mu.RLock()
	entries, err := c.store.ReadAll(ctx)
	c.mu.RUnlock()
	if err != nil {
		return IntegrityReport{}, fmt.Errorf("ledger verify: %w", err)
	}

	report := Verify(entries)
	if report.Valid {
		c.logger.Info("Ledger verified", "entries", report.Entries)
	} else {
		c.logger.Warn("Ledger integrity breach",
			"row", report.BreachRow,
			"reason", report.Reason,
			"entries", report.Entries,
		)
	}
	return report, nil
}

// Verify checks an ordered entry sequence. Row 0 must link to GenesisHash.
func Verify(entries []Entry) IntegrityReport {
	expectedPrev := GenesisHash
	for i, e := range entries {
		if e.PreviousHash != expectedPrev {
			return breach(i, BreachLink, len(entries))
		}
		if ComputeHash(e, e.PreviousHash) != e.PayloadHash {
			return breach(i, BreachPayload, len(entries))
		}
		expectedPrev = e.PayloadHash
	}
	return IntegrityReport{
		Valid:     true,
		Detail:    fmt.Sprintf("Chain verified: %d entries", len(entries)),
		BreachRow: -1,
		Entries:   len(entries),
	}
}

func breach(row int, reason BreachReason, total int) IntegrityReport {
	return IntegrityReport{
		Valid:     false,
		Detail:    fmt.Sprintf("Integrity Breach at row %d", row),
		BreachRow: row,
		Reason:    reason,
		Entries:   total,
	}
}

// GetAll returns entries in insertion order
func (c *Chain) GetAll(ctx context.Context) ([]Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entries, err := c.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger read: %w", err)
	}
	return entries, nil
}

// GetAllNewestFirst returns a reversed copy for display
func (c *Chain) GetAllNewestFirst(ctx context.Context) ([]Entry, error) {
	entries, err := c.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	reversed := make([]Entry, len(entries))
	for i, e := range entries {
		reversed[len(entries)-1-i] = e
	}
	return reversed, nil
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}
