package manifestindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/gmrt-tiles/internal/core/observability"
)

type StoreOption func(*redis.Options)

func WithPoolSize(n int) StoreOption {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) StoreOption {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) StoreOption {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) StoreOption {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

// Store is the Redis side of the index: entry blobs plus per-cell sets of entry keys.
type Store struct {
	rdb *redis.Client
}

func NewStore(ctx context.Context, addr string, opts ...StoreOption) (*Store, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)
	err := rdb.Ping(ctx).Err()
	observability.ObserveIndexOp("ping", err)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

// Put writes the entry blob and adds its key to every cell set in one pipeline.
func (s *Store) Put(ctx context.Context, entryKey string, val []byte, cellKeys []string, ttl time.Duration) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, entryKey, val, ttl)
		for _, ck := range cellKeys {
			p.SAdd(ctx, ck, entryKey)
			if ttl > 0 {
				p.Expire(ctx, ck, ttl)
			}
		}
		return nil
	})
	observability.ObserveIndexOp("put", err)
	if err != nil {
		return fmt.Errorf("redis index put %q (%d cells): %w", entryKey, len(cellKeys), err)
	}
	return nil
}

// Members returns the union of the given sets.
func (s *Store) Members(ctx context.Context, setKeys ...string) ([]string, error) {
	if len(setKeys) == 0 {
		return nil, nil
	}
	out, err := s.rdb.SUnion(ctx, setKeys...).Result()
	observability.ObserveIndexOp("sunion", err)
	if err != nil {
		return nil, fmt.Errorf("redis SUNION %d keys: %w", len(setKeys), err)
	}
	return out, nil
}

// MGet returns a map of found keys to their values
func (s *Store) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	observability.ObserveIndexOp("mget", err)
	if err != nil {
		return nil, fmt.Errorf("redis MGET %d keys: %w", len(keys), err)
	}

	out := make(map[string][]byte, len(vals))
	for i, v := range vals {
		switch t := v.(type) {
		case nil:
			// expired or never written
		case string:
			out[keys[i]] = []byte(t)
		case []byte:
			out[keys[i]] = t
		default:
			out[keys[i]] = fmt.Append(nil, t)
		}
	}
	return out, nil
}

// Forget drops stale members from a set.
func (s *Store) Forget(ctx context.Context, setKey string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	err := s.rdb.SRem(ctx, setKey, args...).Err()
	observability.ObserveIndexOp("srem", err)
	if err != nil {
		return fmt.Errorf("redis SREM %q: %w", setKey, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}
