// Package cache keeps workflow catalog snapshots in Redis for read-only paths.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/port"
	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
)

// Config holds Redis connection settings
type Config struct {
	Addr         string
	Password     string
	DB           int
	TTL          time.Duration
	KeyPrefix    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultTTL bounds staleness when an invalidation is lost
const DefaultTTL = 10 * time.Minute

// RedisSnapshotCache implements port.SnapshotCache on Redis
type RedisSnapshotCache struct {
	client    redis.Cmdable
	ttl       time.Duration
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisClient opens a client and pings the server
func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewRedisSnapshotCache wraps a Redis client
func NewRedisSnapshotCache(client redis.Cmdable, cfg Config, logger *zap.Logger) *RedisSnapshotCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "excise:catalog:"
	}
	return &RedisSnapshotCache{client: client, ttl: ttl, keyPrefix: prefix, logger: logger}
}

func (c *RedisSnapshotCache) key(workflowID int64) string {
	return fmt.Sprintf("%ssnapshot:%d", c.keyPrefix, workflowID)
}

// Get returns a cached snapshot, or (nil, nil) on a miss
func (c *RedisSnapshotCache) Get(ctx context.Context, workflowID int64) (*domainwf.Snapshot, error) {
	data, err := c.client.Get(ctx, c.key(workflowID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Set stores a snapshot until the TTL expires or it is invalidated
func (c *RedisSnapshotCache) Set(ctx context.Context, snap *domainwf.Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(snap.Workflow.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache snapshot: %w", err)
	}
	return nil
}

// Invalidate drops the cached snapshot of a workflow
func (c *RedisSnapshotCache) Invalidate(ctx context.Context, workflowID int64) error {
	if err := c.client.Del(ctx, c.key(workflowID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate snapshot: %w", err)
	}
	c.logger.Debug("Snapshot cache invalidated", zap.Int64("workflow_id", workflowID))
	return nil
}

func encodeSnapshot(snap *domainwf.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (*domainwf.Snapshot, error) {
	var snap domainwf.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	snap.Reindex()
	return &snap, nil
}

var _ port.SnapshotCache = (*RedisSnapshotCache)(nil)
