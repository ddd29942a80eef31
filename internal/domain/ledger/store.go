package ledger

import (
	"context"
	"errors"
)

// ErrStoreUnavailable wraps backend failures so callers can tell an
// unreachable store apart from a broken chain
var ErrStoreUnavailable = errors.New("ledger store unavailable")

// Store persists entries in insertion order.
// Implementations must not return from Append until the entry is durable.
type Store interface {
	// Append durably writes one committed entry at the end of the log
	Append(ctx context.Context, entry Entry) error

	// ReadAll returns every entry, oldest first
	ReadAll(ctx context.Context) ([]Entry, error)
}

// LinkedAppender is implemented by stores that can read the last committed
// hash and write the next entry in one transaction. Writers in separate
// processes sharing such a store cannot fork the chain.
type LinkedAppender interface {
	// AppendNext reads the last hash (GenesisHash when empty), passes it to
	// build and durably writes the returned entry before releasing the lock
	AppendNext(ctx context.Context, build func(previousHash string) Entry) (Entry, error)
}

// LastHasher is implemented by stores that can return the last committed
// hash without reading the whole log. An empty store returns GenesisHash.
type LastHasher interface {
	LastHash(ctx context.Context) (string, error)
}
