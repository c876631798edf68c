package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/port"
)

// CacheWarmerConfig holds configuration for the snapshot cache warmer
type CacheWarmerConfig struct {
	Interval time.Duration
	// Timeout bounds one refresh pass
	Timeout time.Duration
}

// DefaultCacheWarmerConfig returns default configuration
func DefaultCacheWarmerConfig() CacheWarmerConfig {
	return CacheWarmerConfig{
		Interval: 5 * time.Minute,
		Timeout:  30 * time.Second,
	}
}

// CacheWarmer reloads every workflow snapshot from the store into the
// cache, so read paths rarely miss after an invalidation or a TTL expiry
type CacheWarmer struct {
	config    CacheWarmerConfig
	workflows port.WorkflowRepository
	source    port.SnapshotSource
	cache     port.SnapshotCache
	logger    *zap.Logger

	mu          sync.RWMutex
	cancel      context.CancelFunc
	done        chan struct{}
	isRunning   bool
	warmedCount int
	failedCount int
	lastError   error
}

// NewCacheWarmer creates a cache warmer
func NewCacheWarmer(
	config CacheWarmerConfig,
	workflows port.WorkflowRepository,
	source port.SnapshotSource,
	cache port.SnapshotCache,
	logger *zap.Logger,
) *CacheWarmer {
	if config.Interval <= 0 {
		config.Interval = DefaultCacheWarmerConfig().Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultCacheWarmerConfig().Timeout
	}
	return &CacheWarmer{
		config:    config,
		workflows: workflows,
		source:    source,
		cache:     cache,
		logger:    logger,
	}
}

// Start warms the cache once and then on every tick
func (w *CacheWarmer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("cache warmer already running")
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("CacheWarmer started", zap.Duration("interval", w.config.Interval))

	go w.loop(ctx)
	return nil
}

// Stop terminates the loop and waits for a running pass to finish
func (w *CacheWarmer) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.logger.Info("CacheWarmer stopped",
		zap.Int("warmed_count", w.WarmedCount()),
		zap.Int("failed_count", w.failedCountSafe()))
	return nil
}

// Name returns the worker name for identification
func (w *CacheWarmer) Name() string {
	return "CacheWarmer"
}

func (w *CacheWarmer) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		w.record(ctx, w.Warm(ctx))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CacheWarmer) record(ctx context.Context, err error) {
	if err == nil || ctx.Err() != nil {
		return
	}
	w.mu.Lock()
	w.lastError = err
	w.mu.Unlock()
	w.logger.Error("Failed to warm snapshot cache", zap.Error(err))
}

// Warm runs one refresh pass. A workflow that fails to load is skipped.
func (w *CacheWarmer) Warm(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	workflows, err := w.workflows.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	for _, wf := range workflows {
		snap, err := w.source.LoadSnapshot(ctx, wf.ID)
		if err == nil {
			err = w.cache.Set(ctx, snap)
		}

		w.mu.Lock()
		if err != nil {
			w.failedCount++
		} else {
			w.warmedCount++
		}
		w.mu.Unlock()

		if err != nil {
			w.logger.Warn("Failed to warm snapshot",
				zap.Int64("workflow_id", wf.ID),
				zap.String("workflow", wf.Name),
				zap.Error(err))
		}
	}

	w.logger.Debug("Snapshot cache warmed", zap.Int("workflows", len(workflows)))
	return nil
}

// WarmedCount returns how many snapshots have been written to the cache
func (w *CacheWarmer) WarmedCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.warmedCount
}

func (w *CacheWarmer) failedCountSafe() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.failedCount
}

// LastError returns the error of the most recent failed pass
func (w *CacheWarmer) LastError() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastError
}
