package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/ledger"
)

// DefaultRedisKey is the list holding the ledger
const DefaultRedisKey = "smartcash:audit_ledger"

// RedisStore keeps the ledger as a Redis list of JSON rows.
// Durability follows the server's persistence settings (appendfsync always
// for the same guarantee as the file backends).
type RedisStore struct {
	client *redis.Client
	key    string
}

// Compile-time checks
var (
	_ LedgerStore           = (*RedisStore)(nil)
	_ ledger.LinkedAppender = (*RedisStore)(nil)
	_ ledger.LastHasher     = (*RedisStore)(nil)
)

// redisAppendRetries bounds optimistic retries when another writer moves the tip
const redisAppendRetries = 16

// RedisOptions configures the Redis backend
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// NewRedisStore connects and pings the server
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	key := opts.Key
	if key == "" {
		key = DefaultRedisKey
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}

	return &RedisStore{client: client, key: key}, nil
}

// Key returns the list key
func (s *RedisStore) Key() string {
	return s.key
}

// Append pushes one JSON row onto the tail of the list
func (s *RedisStore) Append(ctx context.Context, entry ledger.Entry) error {
	data, err := json.Marshal(toRecord(entry))
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	return nil
}

// AppendNext watches the list, reads its tail and pushes the linked entry in
// a MULTI/EXEC. A concurrent push from another writer aborts the EXEC and the
// entry is rebuilt on the new tip.
func (s *RedisStore) AppendNext(ctx context.Context, build func(previousHash string) ledger.Entry) (ledger.Entry, error) {
	var entry ledger.Entry
	txf := func(tx *redis.Tx) error {
		prev, err := redisLastHash(tx.LIndex(ctx, s.key, -1))
		if err != nil {
			return err
		}
		entry = build(prev)
		data, err := json.Marshal(toRecord(entry))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, s.key, data)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < redisAppendRetries; attempt++ {
		err := s.client.Watch(ctx, txf, s.key)
		if err == nil {
			return entry, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return ledger.Entry{}, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	return ledger.Entry{}, fmt.Errorf("%w: ledger tip kept moving after %d attempts", ledger.ErrStoreUnavailable, redisAppendRetries)
}

// LastHash reads the tail of the list
func (s *RedisStore) LastHash(ctx context.Context) (string, error) {
	return redisLastHash(s.client.LIndex(ctx, s.key, -1))
}

func redisLastHash(cmd *redis.StringCmd) (string, error) {
	raw, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return ledger.GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	var r ledgerRecord
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return "", fmt.Errorf("ledger tail: %w", err)
	}
	return r.PayloadHash, nil
}

// ReadAll reads the whole list, oldest first
func (s *RedisStore) ReadAll(ctx context.Context) ([]ledger.Entry, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}

	records := make([]ledgerRecord, 0, len(raw))
	for i, item := range raw {
		var r ledgerRecord
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("ledger row %d: %w", i, err)
		}
		records = append(records, r)
	}
	return recordsToEntries(records)
}

// Client exposes the underlying client
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
