package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror publishes a broker's worker-readiness set to Redis so a second
// broker instance for the same family can observe which workers exist,
// without itself owning assignment. Off by default; a deployment opts in by
// calling Broker.EnableRedisMirror.
type RedisMirror struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisMirror creates a mirror that stores worker ids under
// "laf:<family>:workers" in the Redis instance at addr.
func NewRedisMirror(addr, family string) *RedisMirror {
	return &RedisMirror{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		key:    fmt.Sprintf("laf:%s:workers", family),
		ttl:    30 * time.Second,
	}
}

// newRedisMirrorWithClient is used by tests to inject a client bound to a
// miniredis instance.
func newRedisMirrorWithClient(client *redis.Client, family string) *RedisMirror {
	return &RedisMirror{client: client, key: fmt.Sprintf("laf:%s:workers", family), ttl: 30 * time.Second}
}

// Close releases the underlying Redis client connection.
func (m *RedisMirror) Close() error { return m.client.Close() }

// MarkReady records workerID as ready, refreshing its TTL.
func (m *RedisMirror) MarkReady(ctx context.Context, workerID string) error {
	if err := m.client.HSet(ctx, m.key, workerID, time.Now().Unix()).Err(); err != nil {
		return fmt.Errorf("redis mirror: mark ready %s: %w", workerID, err)
	}
	return m.client.Expire(ctx, m.key, m.ttl).Err()
}

// MarkGone removes workerID, mirroring HandleWorkerDeath.
func (m *RedisMirror) MarkGone(ctx context.Context, workerID string) error {
	if err := m.client.HDel(ctx, m.key, workerID).Err(); err != nil {
		return fmt.Errorf("redis mirror: mark gone %s: %w", workerID, err)
	}
	return nil
}

// Workers lists the worker ids currently mirrored for the family.
func (m *RedisMirror) Workers(ctx context.Context) ([]string, error) {
	fields, err := m.client.HKeys(ctx, m.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mirror: list workers: %w", err)
	}
	return fields, nil
}

// EnableRedisMirror attaches a RedisMirror to the broker; Register/Remove
// calls below best-effort-publish to it whenever set.
func (b *Broker) EnableRedisMirror(m *RedisMirror) {
	b.redisMu.Lock()
	defer b.redisMu.Unlock()
	b.redis = m
}

func (b *Broker) mirrorReady(workerID string) {
	b.redisMu.Lock()
	m := b.redis
	b.redisMu.Unlock()
	if m == nil {
		return
	}
	if err := m.MarkReady(context.Background(), workerID); err != nil {
		b.logger.Warn("redis mirror mark-ready failed", "worker_id", workerID, "error", err)
	}
}

func (b *Broker) mirrorGone(workerID string) {
	b.redisMu.Lock()
	m := b.redis
	b.redisMu.Unlock()
	if m == nil {
		return
	}
	if err := m.MarkGone(context.Background(), workerID); err != nil {
		b.logger.Warn("redis mirror mark-gone failed", "worker_id", workerID, "error", err)
	}
}
