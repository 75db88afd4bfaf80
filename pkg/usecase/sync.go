package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/kvca-ops/enrolsync/pkg/domain/interfaces"
	"github.com/kvca-ops/enrolsync/pkg/domain/model"
	"github.com/kvca-ops/enrolsync/pkg/domain/types"
	"github.com/kvca-ops/enrolsync/pkg/service/kvca"
	"github.com/kvca-ops/enrolsync/pkg/utils/errutil"
	"github.com/kvca-ops/enrolsync/pkg/utils/logging"
)

// SyncUseCase walks the KVCA hierarchy (categories > courses > class status
// rows > per-user detail), builds redacted source records, and hands them to
// the persistence engine. One run holds the job lease for its whole span.
type SyncUseCase struct {
	repo          interfaces.Repository
	source        kvca.Service
	persist       *PersistUseCase
	jobName       string
	lockTTL       time.Duration
	owner         string
	sensitiveKeys []string
	now           func() time.Time
}

// SyncInput narrows one run. Zero limits mean unlimited.
type SyncInput struct {
	CategoryID        *int
	MaxCategories     int
	MaxUsersPerCourse int
	Trigger           types.TriggerType
}

// Run executes one sync pass. On lock conflict it returns ErrLockConflict
// without writing a run_log row. On any other failure the run_log row is
// finalized FAILED, a failure alert is synthesized, and the error is
// returned with the partial summary.
func (x *SyncUseCase) Run(ctx context.Context, input SyncInput) (*model.SyncSummary, error) {
	summary := &model.SyncSummary{
		StartedAt: x.now().UTC().Format(time.RFC3339),
	}

	acquired, err := x.repo.Lock().Acquire(ctx, x.jobName, x.owner, x.lockTTL)
	if err != nil {
		return summary, goerr.Wrap(err, "failed to acquire job lock", goerr.V("job", x.jobName))
	}
	summary.LockAcquired = acquired
	if !acquired {
		return summary, goerr.Wrap(ErrLockConflict, "sync not started", goerr.V("job", x.jobName))
	}
	defer func() {
		if err := x.repo.Lock().Release(ctx, x.jobName, x.owner); err != nil {
			_ = errutil.Handle(ctx, err, "failed to release job lock")
		}
	}()

	runID, err := x.repo.Run().Start(ctx, x.jobName, input.Trigger.Normalize())
	if err != nil {
		return summary, goerr.Wrap(err, "failed to start run log")
	}

	logging.From(ctx).Info("sync run started",
		"job", x.jobName,
		"run_id", runID,
		"trigger", input.Trigger.Normalize(),
	)

	result, runErr := x.traverse(ctx, input, summary)
	summary.FinishedAt = x.now().UTC().Format(time.RFC3339)

	if runErr != nil {
		if err := x.repo.Run().Finish(ctx, runID, types.RunStatusFailed, summary, truncate(runErr.Error(), runErrorLimit)); err != nil {
			_ = errutil.Handle(ctx, err, "failed to finalize failed run")
		}
		if err := x.persist.RecordRunFailure(ctx, x.jobName, runErr); err != nil {
			_ = errutil.Handle(ctx, err, "failed to record run failure alert")
		}
		return summary, runErr
	}

	summary.SourceRecordsUpserts = result.Upserted
	summary.NewRecords = result.New
	summary.ChangedRecords = result.Changed
	summary.CreatedAlerts = result.Alerts

	if err := x.repo.Run().Finish(ctx, runID, types.RunStatusSuccess, summary, ""); err != nil {
		return summary, goerr.Wrap(err, "failed to finalize run log")
	}

	logging.From(ctx).Info("sync run finished",
		"run_id", runID,
		"records", result.Upserted,
		"new", result.New,
		"changed", result.Changed,
		"alerts", result.Alerts,
	)

	return summary, nil
}

// traverse walks the hierarchy and persists what it collected. A 409 on a
// course listing skips that category's remaining courses; a failed detail
// call skips only that user. Everything else aborts the run.
func (x *SyncUseCase) traverse(ctx context.Context, input SyncInput, summary *model.SyncSummary) (*PersistResult, error) {
	categories, err := x.resolveCategories(ctx, input)
	if err != nil {
		return nil, err
	}
	summary.CategoriesProcessed = len(categories)

	var records []*model.SourceRecord
	for _, termID := range categories {
		courses, err := x.source.CoursesByCategory(ctx, termID)
		if err != nil {
			if kvca.StatusCode(err) == 409 {
				summary.FailedCourseCalls++
				logging.From(ctx).Warn("course listing conflict, skipping category",
					"term_id", termID, "error", err.Error())
				continue
			}
			return nil, goerr.Wrap(err, "failed to list courses", goerr.V("term_id", termID))
		}
		summary.CoursesProcessed += len(courses)

		for _, course := range courses {
			courseID, ok := course.Int("courseid")
			if !ok {
				courseID, ok = course.Int("id")
			}
			if !ok {
				continue
			}

			rows, err := x.source.ClassStatusAll(ctx, courseID)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to list class status",
					goerr.V("term_id", termID), goerr.V("course_id", courseID))
			}
			if input.MaxUsersPerCourse > 0 && len(rows) > input.MaxUsersPerCourse {
				rows = rows[:input.MaxUsersPerCourse]
			}
			summary.StatusRowsProcessed += len(rows)

			for _, row := range rows {
				record := x.buildStatusRecord(termID, courseID, row)
				if record == nil {
					continue
				}
				records = append(records, record)

				detail, err := x.source.EnrolmentUserInfo(ctx, termID, record.UserID)
				if err != nil {
					summary.FailedDetailCalls++
					logging.From(ctx).Warn("detail call failed, skipping user",
						"term_id", termID, "user_id", record.UserID, "error", err.Error())
					continue
				}
				if len(detail) == 0 {
					continue
				}
				records = append(records, x.buildDetailRecord(termID, courseID, record.UserID, detail))
				summary.DetailsProcessed++
			}
		}
	}

	return x.persist.PersistRecords(ctx, records)
}

func (x *SyncUseCase) resolveCategories(ctx context.Context, input SyncInput) ([]int, error) {
	if input.CategoryID != nil {
		return []int{*input.CategoryID}, nil
	}

	categories, err := x.source.Categories(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list categories")
	}

	var ids []int
	for _, category := range categories {
		if id, ok := category.Int("id"); ok {
			ids = append(ids, id)
		}
	}
	if input.MaxCategories > 0 && len(ids) > input.MaxCategories {
		ids = ids[:input.MaxCategories]
	}
	return ids, nil
}

// buildStatusRecord maps one classStatusAll row. An absent user or
// classStatus block reads as empty, so a row missing its status block still
// becomes a record; rows are dropped only when a present block is not an
// object or no user identity resolves. userId falls back to email.
func (x *SyncUseCase) buildStatusRecord(termID, courseID int, row kvca.Object) *model.SourceRecord {
	user, ok := objectField(row, "user")
	if !ok {
		return nil
	}
	class, ok := objectField(row, "classStatus")
	if !ok {
		return nil
	}

	userID := strings.TrimSpace(user.String("userId"))
	if userID == "" {
		userID = strings.TrimSpace(user.String("email"))
	}
	if userID == "" {
		return nil
	}

	payload := model.RedactObject(row.Payload(), x.sensitiveKeys)

	return &model.SourceRecord{
		SourceType:  types.SourceTypeEnrolmentStatus,
		SourceID:    fmt.Sprintf("%d:%s", termID, userID),
		CategoryID:  termID,
		CourseID:    courseID,
		TermID:      termID,
		UserID:      userID,
		UserName:    strings.TrimSpace(user.String("userName")),
		CompanyName: strings.TrimSpace(user.String("companyName")),
		DeptName:    strings.TrimSpace(user.String("deptName")),
		JobPosition: strings.TrimSpace(user.String("jobPosition")),
		Status:      strings.TrimSpace(class.String("status")),
		StatusMsg:   strings.TrimSpace(class.String("statusmsg")),
		CodeName:    strings.TrimSpace(class.String("codename")),
		DSDate:      parseSourceTime(class.String("ds_date")),
		GCDate:      parseSourceTime(class.String("gc_date")),
		SJCDate:     parseSourceTime(class.String("sjc_date")),
		UpdateTime:  parseSourceTime(class.String("update_time")),
		Payload:     payload,
		PayloadHash: model.PayloadHash(payload),
	}
}

func (x *SyncUseCase) buildDetailRecord(termID, courseID int, userID string, detail kvca.Object) *model.SourceRecord {
	payload := model.RedactObject(detail.Payload(), x.sensitiveKeys)
	obj := kvca.Object(payload)

	return &model.SourceRecord{
		SourceType:  types.SourceTypeEnrolmentUserDetail,
		SourceID:    fmt.Sprintf("%d:%s", termID, userID),
		CategoryID:  termID,
		CourseID:    courseID,
		TermID:      termID,
		UserID:      userID,
		UserName:    strings.TrimSpace(obj.String("userName")),
		CompanyName: strings.TrimSpace(obj.String("companyName")),
		DeptName:    strings.TrimSpace(obj.String("deptName")),
		JobPosition: strings.TrimSpace(obj.String("jobPosition")),
		Payload:     payload,
		PayloadHash: model.PayloadHash(payload),
	}
}

// objectField reads a nested object off a row. A missing key or JSON null
// is an empty object; a present non-object value rejects the row.
func objectField(row kvca.Object, key string) (kvca.Object, bool) {
	raw, exists := row[key]
	if !exists || raw == nil {
		return kvca.Object{}, true
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	return kvca.Object(obj), true
}

// kst is the source system's local zone. Its timestamps carry no offset.
var kst = time.FixedZone("KST", 9*60*60)

const sourceTimeLayout = "2006-01-02 15:04:05"

// parseSourceTime maps a source timestamp string to UTC-comparable time.
// The literal "empty" (any case) and unparseable values become nil.
// time.Parse accepts an optional fractional second after the seconds
// element, so one layout covers both observed shapes.
func parseSourceTime(value string) *time.Time {
	text := strings.TrimSpace(value)
	if text == "" || strings.EqualFold(text, "empty") {
		return nil
	}
	t, err := time.ParseInLocation(sourceTimeLayout, text, kst)
	if err != nil {
		return nil
	}
	return &t
}
