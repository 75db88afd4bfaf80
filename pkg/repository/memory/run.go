package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/kvca-ops/enrolsync/pkg/domain/model"
	"github.com/kvca-ops/enrolsync/pkg/domain/types"
)

type runRepository struct {
	mu     sync.Mutex
	nextID int64
	runs   map[int64]*model.RunLog
}

func newRunRepository() *runRepository {
	return &runRepository{
		nextID: 1,
		runs:   make(map[int64]*model.RunLog),
	}
}

func (r *runRepository) Start(ctx context.Context, jobName string, trigger types.TriggerType) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.runs[id] = &model.RunLog{
		ID:          id,
		JobName:     jobName,
		TriggerType: trigger.Normalize(),
		Status:      types.RunStatusRunning,
		StartedAt:   time.Now().UTC(),
	}
	return id, nil
}

func (r *runRepository) Finish(ctx context.Context, runID int64, status types.RunStatus, summary *model.SyncSummary, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return goerr.Wrap(ErrNotFound, "run log not found", goerr.V("run_id", runID))
	}

	now := time.Now().UTC()
	run.Status = status
	run.FinishedAt = &now
	run.ErrorMessage = errorMessage
	if summary != nil {
		run.TotalRecords = summary.StatusRowsProcessed
		run.Changed = summary.ChangedRecords
		run.Alerts = summary.CreatedAlerts
		run.RetryCount = summary.FailedDetailCalls
	}
	return nil
}

func (r *runRepository) Get(ctx context.Context, runID int64) (*model.RunLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "run log not found", goerr.V("run_id", runID))
	}
	copied := *run
	return &copied, nil
}
