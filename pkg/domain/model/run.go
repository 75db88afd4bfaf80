package model

import (
	"time"

	"github.com/kvca-ops/enrolsync/pkg/domain/types"
)

// RunLog is the audit record of one sync invocation
type RunLog struct {
	ID           int64
	JobName      string
	TriggerType  types.TriggerType
	Status       types.RunStatus
	StartedAt    time.Time
	FinishedAt   *time.Time
	TotalRecords int
	Changed      int
	Alerts       int
	RetryCount   int
	ErrorMessage string
}

// SyncSummary aggregates the counters of one sync run. It is returned to the
// trigger caller and folded into the run_log row at finalization.
type SyncSummary struct {
	CategoriesProcessed  int    `json:"categories_processed"`
	CoursesProcessed     int    `json:"courses_processed"`
	StatusRowsProcessed  int    `json:"status_rows_processed"`
	DetailsProcessed     int    `json:"details_processed"`
	SourceRecordsUpserts int    `json:"source_records_upserted"`
	NewRecords           int    `json:"new_records"`
	ChangedRecords       int    `json:"changed_records"`
	CreatedAlerts        int    `json:"created_alerts"`
	FailedDetailCalls    int    `json:"failed_detail_calls"`
	FailedCourseCalls    int    `json:"failed_course_calls"`
	LockAcquired         bool   `json:"lock_acquired"`
	StartedAt            string `json:"started_at"`
	FinishedAt           string `json:"finished_at"`
}
