package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/kvca-ops/enrolsync/pkg/domain/interfaces"
	"github.com/kvca-ops/enrolsync/pkg/domain/model"
	"github.com/kvca-ops/enrolsync/pkg/domain/types"
	"github.com/kvca-ops/enrolsync/pkg/utils/logging"
)

const (
	runErrorLimit    = 1500
	outboxErrorLimit = 500
)

// PersistUseCase is the diff engine: it compares incoming records against
// stored payload hashes, upserts state and history, and raises cooldown-
// filtered alerts with their sheet outbox rows.
type PersistUseCase struct {
	repo     interfaces.Repository
	cooldown time.Duration
	now      func() time.Time
}

// PersistResult aggregates one persistence pass.
type PersistResult struct {
	Upserted int
	New      int
	Changed  int
	Alerts   int
}

// PersistRecords classifies records as new/changed/unchanged by stored hash,
// writes all of them, and raises alerts for alert-eligible changes. Alerts
// are suppressed when an identical-identity alert exists within the cooldown
// window.
func (x *PersistUseCase) PersistRecords(ctx context.Context, records []*model.SourceRecord) (*PersistResult, error) {
	result := &PersistResult{}
	records = dedupeByKey(records)
	if len(records) == 0 {
		return result, nil
	}

	keys := make([]model.RecordKey, 0, len(records))
	for _, record := range records {
		keys = append(keys, record.Key())
	}
	hashes, err := x.repo.Record().GetHashes(ctx, keys)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load stored hashes")
	}

	now := x.now().UTC()
	var alerts []*model.Alert
	for _, record := range records {
		record.LastSeenAt = now

		stored, exists := hashes[record.Key()]
		var alertType types.AlertType
		switch {
		case !exists:
			result.New++
			alertType = types.AlertTypeNew
		case stored != record.PayloadHash:
			result.Changed++
			alertType = types.AlertTypeChanged
		default:
			continue
		}

		// Only status rows carry the business fields alerts are about.
		if record.SourceType != types.SourceTypeEnrolmentStatus {
			continue
		}

		suppressed, err := x.inCooldown(ctx, record.SourceType, record.SourceID, alertType, now)
		if err != nil {
			return nil, err
		}
		if suppressed {
			continue
		}

		alerts = append(alerts, buildRecordAlert(record, alertType, now))
	}
	result.Upserted = len(records)

	if err := x.repo.Record().UpsertAll(ctx, records); err != nil {
		return nil, goerr.Wrap(err, "failed to upsert source records")
	}

	snapshots := make([]*model.Snapshot, 0, len(records))
	for _, record := range records {
		snapshots = append(snapshots, record.ToSnapshot())
	}
	if err := x.repo.Record().AppendSnapshots(ctx, snapshots); err != nil {
		return nil, goerr.Wrap(err, "failed to append snapshots")
	}

	if err := x.raiseAlerts(ctx, alerts); err != nil {
		return nil, err
	}
	result.Alerts = len(alerts)

	return result, nil
}

// RecordRunFailure classifies a failed run into an error group and raises
// one FAILED alert keyed "{jobName}:{group}", under the same cooldown rule
// as record alerts. Repeated failures of the same kind within the window
// stay quiet.
func (x *PersistUseCase) RecordRunFailure(ctx context.Context, jobName string, runErr error) error {
	group := classifyFailure(runErr)
	now := x.now().UTC()
	sourceID := jobName + ":" + group.String()

	suppressed, err := x.inCooldown(ctx, types.SourceTypeJob, sourceID, types.AlertTypeFailed, now)
	if err != nil {
		return err
	}
	if suppressed {
		logging.From(ctx).Info("run failure alert suppressed by cooldown",
			"job", jobName, "error_group", group)
		return nil
	}

	message := truncate(runErr.Error(), runErrorLimit)
	alert := &model.Alert{
		ID:         model.NewAlertID(),
		SourceType: types.SourceTypeJob,
		SourceID:   sourceID,
		AlertType:  types.AlertTypeFailed,
		Severity:   group.Severity(),
		Title:      fmt.Sprintf("[FAILED] %s (%s)", jobName, group),
		Message:    message,
		Detail: map[string]any{
			"job_name":    jobName,
			"error_group": group.String(),
			"error":       message,
		},
		CreatedAt: now,
	}

	return x.raiseAlerts(ctx, []*model.Alert{alert})
}

func (x *PersistUseCase) inCooldown(ctx context.Context, sourceType types.SourceType, sourceID string, alertType types.AlertType, now time.Time) (bool, error) {
	since := now.Add(-x.cooldown)
	exists, err := x.repo.Alert().ExistsSince(ctx, sourceType, sourceID, alertType, since)
	if err != nil {
		return false, goerr.Wrap(err, "failed to check alert cooldown",
			goerr.V("source_type", sourceType), goerr.V("source_id", sourceID))
	}
	return exists, nil
}

// raiseAlerts stores alerts and enqueues one sheet outbox row per alert.
// Enqueue is idempotent on the alert row key, so a retried persistence pass
// does not duplicate outbox work.
func (x *PersistUseCase) raiseAlerts(ctx context.Context, alerts []*model.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	if err := x.repo.Alert().Insert(ctx, alerts); err != nil {
		return goerr.Wrap(err, "failed to insert alerts")
	}

	for _, alert := range alerts {
		row := &model.OutboxRow{
			RowKey:  alert.RowKey(),
			Payload: sheetPayload(alert),
			Status:  types.OutboxStatusPending,
		}
		inserted, err := x.repo.SheetOutbox().Enqueue(ctx, row)
		if err != nil {
			return goerr.Wrap(err, "failed to enqueue sheet outbox row",
				goerr.V("row_key", row.RowKey))
		}
		if !inserted {
			logging.From(ctx).Debug("sheet outbox row already enqueued", "row_key", row.RowKey)
		}
	}

	return nil
}

// dedupeByKey keeps the first observation of each record key. The same
// user/term can show up under two courses in one traversal; persisting the
// key twice would raise duplicate alerts and break the batched upsert, which
// cannot touch one row twice.
func dedupeByKey(records []*model.SourceRecord) []*model.SourceRecord {
	seen := make(map[model.RecordKey]struct{}, len(records))
	deduped := records[:0:0]
	for _, record := range records {
		if _, ok := seen[record.Key()]; ok {
			continue
		}
		seen[record.Key()] = struct{}{}
		deduped = append(deduped, record)
	}
	return deduped
}

func buildRecordAlert(record *model.SourceRecord, alertType types.AlertType, now time.Time) *model.Alert {
	return &model.Alert{
		ID:         model.NewAlertID(),
		SourceType: record.SourceType,
		SourceID:   record.SourceID,
		AlertType:  alertType,
		Severity:   alertSeverity(alertType, record),
		Title:      fmt.Sprintf("[%s] %s %s", alertType, record.UserName, record.Status),
		Message: fmt.Sprintf("enrolment %s: user %s, course %d, term %d, status %s",
			alertType, record.UserID, record.CourseID, record.TermID, record.Status),
		Detail: map[string]any{
			"user_id":      record.UserID,
			"user_name":    record.UserName,
			"company_name": record.CompanyName,
			"course_id":    record.CourseID,
			"term_id":      record.TermID,
			"status":       record.Status,
			"status_msg":   record.StatusMsg,
			"code_name":    record.CodeName,
			"paid":         record.IsPaid(),
			"doc_ready":    record.IsDocReady(),
			"payload_hash": record.PayloadHash,
		},
		CreatedAt: now,
	}
}

// alertSeverity ranks the business weight of a record alert. Paid or
// document-ready enrolments changing is what operators act on first; a bare
// DS (applied) row is routine intake.
func alertSeverity(alertType types.AlertType, record *model.SourceRecord) types.Severity {
	engaged := record.IsPaid() || record.IsDocReady()
	switch {
	case alertType == types.AlertTypeChanged && engaged:
		return types.SeverityHigh
	case alertType == types.AlertTypeNew && engaged:
		return types.SeverityMedium
	case record.Status == "DS":
		return types.SeverityLow
	default:
		return types.SeverityMedium
	}
}

// sheetPayload is the row shape delivered to the sheet webhook.
func sheetPayload(alert *model.Alert) map[string]any {
	return map[string]any{
		"alert_id":    string(alert.ID),
		"source_type": alert.SourceType.String(),
		"source_id":   alert.SourceID,
		"alert_type":  alert.AlertType.String(),
		"severity":    alert.Severity.String(),
		"title":       alert.Title,
		"message":     alert.Message,
		"detail":      alert.Detail,
		"created_at":  alert.CreatedAt.Format(time.RFC3339),
	}
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
