package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers committed fingerprints so the caller can suppress
// duplicate submissions before they reach the ledger.
type Deduper interface {
	// Seen reports whether fingerprint was already marked.
	Seen(ctx context.Context, fingerprint string) (bool, error)
	// Mark records fingerprint as committed.
	Mark(ctx context.Context, fingerprint string) error
}

// MemoryDeduper is a process-local Deduper.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]struct{})}
}

func (d *MemoryDeduper) Seen(_ context.Context, fingerprint string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.seen[fingerprint]
	return ok, nil
}

func (d *MemoryDeduper) Mark(_ context.Context, fingerprint string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen[fingerprint] = struct{}{}
	return nil
}

// RedisDeduper shares committed fingerprints across sentinel processes.
type RedisDeduper struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper backed by the Redis server at addr.
func NewRedisDeduper(addr, password string, db int, ttl time.Duration) *RedisDeduper {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisDeduperWithClient(rdb, ttl)
}

func NewRedisDeduperWithClient(client redis.UniversalClient, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, prefix: "sentinel:committed:", ttl: ttl}
}

func (d *RedisDeduper) key(fingerprint string) string {
	return d.prefix + fingerprint
}

func (d *RedisDeduper) Seen(ctx context.Context, fingerprint string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(fingerprint)).Result()
	if err != nil {
		return false, fmt.Errorf("redis dedup error: %w", err)
	}
	return n > 0, nil
}

func (d *RedisDeduper) Mark(ctx context.Context, fingerprint string) error {
	// SET NX keeps the first commit time when two processes race.
	if err := d.client.SetNX(ctx, d.key(fingerprint), time.Now().UTC().Format(time.RFC3339), d.ttl).Err(); err != nil {
		return fmt.Errorf("redis dedup error: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (d *RedisDeduper) Close() error {
	return d.client.Close()
}
