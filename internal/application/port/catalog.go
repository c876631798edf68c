package port

import (
	"context"
	"time"

	"github.com/garyjia/excise-workflow/internal/domain/workflow"
)

// SnapshotSource materializes the full catalog of one workflow
type SnapshotSource interface {
	LoadSnapshot(ctx context.Context, workflowID int64) (*workflow.Snapshot, error)
}

// SnapshotCache keeps snapshots for read-only paths.
// Get returns (nil, nil) on a miss.
type SnapshotCache interface {
	Get(ctx context.Context, workflowID int64) (*workflow.Snapshot, error)
	Set(ctx context.Context, snap *workflow.Snapshot) error
	Invalidate(ctx context.Context, workflowID int64) error
}

// OperationObserver records engine operation outcomes
type OperationObserver interface {
	ObserveOperation(operation, outcome string, elapsed time.Duration)
	ObserveTransition(workflowName, fromStage, toStage string)
}
