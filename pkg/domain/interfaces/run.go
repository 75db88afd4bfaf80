package interfaces

import (
	"context"

	"github.com/kvca-ops/enrolsync/pkg/domain/model"
	"github.com/kvca-ops/enrolsync/pkg/domain/types"
)

// RunRepository records sync invocations in the run_log table
type RunRepository interface {
	// Start inserts a RUNNING row and returns its id.
	Start(ctx context.Context, jobName string, trigger types.TriggerType) (int64, error)

	// Finish finalizes the row as SUCCESS or FAILED with aggregate counters
	// from the summary. errorMessage is stored truncated on failure.
	Finish(ctx context.Context, runID int64, status types.RunStatus, summary *model.SyncSummary, errorMessage string) error

	// Get returns one run log row.
	Get(ctx context.Context, runID int64) (*model.RunLog, error)
}
