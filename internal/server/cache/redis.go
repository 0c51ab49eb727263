// Package cache holds the shared snapshot cache and its invalidation fan-out.
// The redis layer uses tag versioning: each handle owns a tag counter, and
// snapshot bodies are stored under the current tag version. Invalidation bumps
// the counter so every cached body becomes unreachable at once; stale bodies
// age out by TTL.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SnapshotCache is the read-side contract the public page handler uses.
type SnapshotCache interface {
	GetSnapshot(ctx context.Context, handle string) ([]byte, bool, error)
	SetSnapshot(ctx context.Context, handle string, body []byte, ttl time.Duration) error
}

// TagCache is the redis-backed snapshot cache. It doubles as the critical
// invalidation sink: a failed purge here means a stale privacy-filtered
// snapshot could be served, so callers must treat it as fatal for
// privacy-affecting writes.
type TagCache struct {
	client *redis.Client
}

func NewTagCache(ctx context.Context, addr string) (*TagCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &TagCache{client: client}, nil
}

func tagKey(handle string) string {
	return "tag:" + handle
}

func snapshotKey(handle string, version int64) string {
	return fmt.Sprintf("snapshot:%s:%d", handle, version)
}

func (c *TagCache) tagVersion(ctx context.Context, handle string) (int64, error) {
	v, err := c.client.Get(ctx, tagKey(handle)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read tag %s: %w", handle, err)
	}
	return v, nil
}

// GetSnapshot returns the cached body for a handle under its current tag
// version. A missing body or a bumped tag is a miss, not an error.
func (c *TagCache) GetSnapshot(ctx context.Context, handle string) ([]byte, bool, error) {
	version, err := c.tagVersion(ctx, handle)
	if err != nil {
		return nil, false, err
	}

	body, err := c.client.Get(ctx, snapshotKey(handle, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		snapshotMissesTotal.Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get snapshot for %s: %w", handle, err)
	}

	snapshotHitsTotal.Inc()
	return body, true, nil
}

func (c *TagCache) SetSnapshot(ctx context.Context, handle string, body []byte, ttl time.Duration) error {
	version, err := c.tagVersion(ctx, handle)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, snapshotKey(handle, version), body, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot for %s: %w", handle, err)
	}
	return nil
}

// Purge bumps the tag counter, orphaning every body cached under the old
// version. The counter key carries a long TTL so abandoned handles do not
// accumulate forever.
func (c *TagCache) Purge(ctx context.Context, handle string) error {
	if err := c.client.Incr(ctx, tagKey(handle)).Err(); err != nil {
		return fmt.Errorf("failed to bump tag %s: %w", handle, err)
	}
	// Refresh on every purge; only truly idle handles expire.
	c.client.Expire(ctx, tagKey(handle), 7*24*time.Hour)
	return nil
}

func (c *TagCache) Name() string { return "redis" }

func (c *TagCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *TagCache) Close() error {
	return c.client.Close()
}
