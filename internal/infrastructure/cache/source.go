package cache

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/excise-workflow/internal/application/port"
	domainwf "github.com/garyjia/excise-workflow/internal/domain/workflow"
)

// CachedSource serves snapshots from a cache and loads misses from the store.
// Cache failures are logged and never fail the read.
type CachedSource struct {
	source port.SnapshotSource
	cache  port.SnapshotCache
	logger *zap.Logger
}

// NewCachedSource wraps source with cache
func NewCachedSource(source port.SnapshotSource, cache port.SnapshotCache, logger *zap.Logger) *CachedSource {
	return &CachedSource{source: source, cache: cache, logger: logger}
}

// LoadSnapshot implements port.SnapshotSource
func (s *CachedSource) LoadSnapshot(ctx context.Context, workflowID int64) (*domainwf.Snapshot, error) {
	snap, err := s.cache.Get(ctx, workflowID)
	if err != nil {
		s.logger.Warn("Snapshot cache read failed, loading from store",
			zap.Int64("workflow_id", workflowID), zap.Error(err))
	}
	if snap != nil {
		return snap, nil
	}

	snap, err = s.source.LoadSnapshot(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, snap); err != nil {
		s.logger.Warn("Failed to cache snapshot", zap.Int64("workflow_id", workflowID), zap.Error(err))
	}
	return snap, nil
}

var _ port.SnapshotSource = (*CachedSource)(nil)
