package supabase

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/kvca-ops/enrolsync/pkg/domain/model"
	"github.com/kvca-ops/enrolsync/pkg/domain/types"
)

type runRow struct {
	ID           int64      `json:"id,omitempty"`
	JobName      string     `json:"job_name"`
	TriggerType  string     `json:"trigger_type"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	TotalRecords int        `json:"total_records"`
	Changed      int        `json:"changed_records"`
	Alerts       int        `json:"created_alerts"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

type runRepository struct {
	client *client
}

func (r *runRepository) Start(ctx context.Context, jobName string, trigger types.TriggerType) (int64, error) {
	row := runRow{
		JobName:     jobName,
		TriggerType: string(trigger.Normalize()),
		Status:      string(types.RunStatusRunning),
		StartedAt:   time.Now().UTC(),
	}

	query := url.Values{}
	query.Set("select", "id")
	data, err := r.client.call(ctx, http.MethodPost, "run_log", query, preferRepresentation, []runRow{row})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to start run log", goerr.V("job_name", jobName))
	}

	rows, err := decodeRows[runRow](data)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, goerr.New("run log insert returned no row", goerr.V("job_name", jobName))
	}
	return rows[0].ID, nil
}

func (r *runRepository) Finish(ctx context.Context, runID int64, status types.RunStatus, summary *model.SyncSummary, errorMessage string) error {
	now := time.Now().UTC()
	patch := map[string]any{
		"status":      string(status),
		"finished_at": formatTime(now),
	}
	if summary != nil {
		patch["total_records"] = summary.StatusRowsProcessed
		patch["changed_records"] = summary.ChangedRecords
		patch["created_alerts"] = summary.CreatedAlerts
		patch["retry_count"] = summary.FailedDetailCalls
	}
	if errorMessage != "" {
		patch["error_message"] = errorMessage
	}

	query := url.Values{}
	query.Set("id", "eq."+strconv.FormatInt(runID, 10))
	if _, err := r.client.call(ctx, http.MethodPatch, "run_log", query, preferMinimal, patch); err != nil {
		return goerr.Wrap(err, "failed to finish run log", goerr.V("run_id", runID))
	}
	return nil
}

func (r *runRepository) Get(ctx context.Context, runID int64) (*model.RunLog, error) {
	query := url.Values{}
	query.Set("id", "eq."+strconv.FormatInt(runID, 10))
	query.Set("limit", "1")

	data, err := r.client.call(ctx, http.MethodGet, "run_log", query, "", nil)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[runRow](data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, goerr.Wrap(ErrNotFound, "run log not found", goerr.V("run_id", runID))
	}

	row := rows[0]
	return &model.RunLog{
		ID:           row.ID,
		JobName:      row.JobName,
		TriggerType:  types.TriggerType(row.TriggerType),
		Status:       types.RunStatus(row.Status),
		StartedAt:    row.StartedAt,
		FinishedAt:   row.FinishedAt,
		TotalRecords: row.TotalRecords,
		Changed:      row.Changed,
		Alerts:       row.Alerts,
		RetryCount:   row.RetryCount,
		ErrorMessage: derefString(row.ErrorMessage),
	}, nil
}
