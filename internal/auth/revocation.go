package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedPrefix = "revoked"

// RedisRevocationStore keeps revoked token ids in Redis with a TTL, so every
// instance behind a load balancer sees a logout.
type RedisRevocationStore struct {
	cli *redis.Client
}

// ConnectRedis connects to the Redis server and pings it.
func ConnectRedis(ctx context.Context, addr string) (*RedisRevocationStore, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisRevocationStore(cli), nil
}

func NewRedisRevocationStore(cli *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{cli: cli}
}

func (r *RedisRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.cli.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (r *RedisRevocationStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if err := r.cli.Set(ctx, revokedKey(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisRevocationStore) Close() error {
	return r.cli.Close()
}

func revokedKey(tokenID string) string {
	return fmt.Sprintf("%s:%s", revokedPrefix, tokenID)
}

// MemoryRevocationStore is a process-local RevocationStore.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{expires: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.expires[tokenID]
	if !ok {
		return false, nil
	}
	if !m.now().Before(exp) {
		delete(m.expires, tokenID)
		return false, nil
	}
	return true, nil
}

func (m *MemoryRevocationStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, exp := range m.expires {
		if !now.Before(exp) {
			delete(m.expires, id)
		}
	}
	m.expires[tokenID] = now.Add(ttl)
	return nil
}
