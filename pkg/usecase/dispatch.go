package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/kvca-ops/enrolsync/pkg/domain/interfaces"
	"github.com/kvca-ops/enrolsync/pkg/domain/model"
	"github.com/kvca-ops/enrolsync/pkg/domain/types"
	"github.com/kvca-ops/enrolsync/pkg/service/slackhook"
	"github.com/kvca-ops/enrolsync/pkg/service/webhook"
	"github.com/kvca-ops/enrolsync/pkg/utils/errutil"
	"github.com/kvca-ops/enrolsync/pkg/utils/logging"
)

// OutboxUseCase drains the two outbox tables. A pass is safe to run
// concurrently with other instances: each row is claimed with a conditional
// status update, and losing a claim only skips the row.
type OutboxUseCase struct {
	repo        interfaces.Repository
	sheet       webhook.Sink
	notifier    slackhook.Notifier
	batchSize   int
	backoffBase time.Duration
	backoffMax  time.Duration
	template    string
	recipient   string
	now         func() time.Time
}

// DispatchResult counts one pass over one table.
type DispatchResult struct {
	Picked  int `json:"picked"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// DispatchSheet drains the sheet outbox. Each delivered row chains one
// notification outbox row before being marked SENT.
func (x *OutboxUseCase) DispatchSheet(ctx context.Context) (*DispatchResult, error) {
	return x.dispatch(ctx, x.repo.SheetOutbox(), x.deliverSheet)
}

// DispatchNotifications drains the notification outbox into the messaging
// sink.
func (x *OutboxUseCase) DispatchNotifications(ctx context.Context) (*DispatchResult, error) {
	return x.dispatch(ctx, x.repo.NotificationOutbox(), x.deliverNotification)
}

// DispatchAll runs a sheet pass then a notification pass, so rows chained by
// the first pass are delivered in the same call.
func (x *OutboxUseCase) DispatchAll(ctx context.Context) (map[string]*DispatchResult, error) {
	sheet, err := x.DispatchSheet(ctx)
	if err != nil {
		return nil, err
	}
	notification, err := x.DispatchNotifications(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]*DispatchResult{
		"sheet":        sheet,
		"notification": notification,
	}, nil
}

func (x *OutboxUseCase) dispatch(ctx context.Context, repo interfaces.OutboxRepository, deliver func(ctx context.Context, row *model.OutboxRow) error) (*DispatchResult, error) {
	rows, err := x.candidates(ctx, repo)
	if err != nil {
		return nil, err
	}

	result := &DispatchResult{Picked: len(rows)}
	for _, row := range rows {
		claimed, err := repo.Claim(ctx, row.ID, row.Status)
		if err != nil {
			_ = errutil.Handle(ctx, err, "failed to claim outbox row")
			result.Skipped++
			continue
		}
		if !claimed {
			result.Skipped++
			continue
		}

		if err := deliver(ctx, row); err != nil {
			retryCount := row.RetryCount + 1
			nextRetryAt := x.now().UTC().Add(x.backoff(row.RetryCount))
			if markErr := repo.MarkFailed(ctx, row.ID, retryCount, nextRetryAt, truncate(err.Error(), outboxErrorLimit)); markErr != nil {
				_ = errutil.Handle(ctx, markErr, "failed to mark outbox row failed")
			}
			logging.From(ctx).Warn("outbox delivery failed",
				"id", row.ID, "row_key", row.RowKey,
				"retry_count", retryCount, "next_retry_at", nextRetryAt,
				"error", err.Error(),
			)
			result.Failed++
			continue
		}

		if err := repo.MarkSent(ctx, row.ID); err != nil {
			// The delivery happened, but the row would otherwise stay
			// PROCESSING forever. Schedule a retry; replay is absorbed by
			// the downstream dedup key.
			_ = errutil.Handle(ctx, err, "failed to mark outbox row sent")
			retryCount := row.RetryCount + 1
			nextRetryAt := x.now().UTC().Add(x.backoff(row.RetryCount))
			if markErr := repo.MarkFailed(ctx, row.ID, retryCount, nextRetryAt, truncate(err.Error(), outboxErrorLimit)); markErr != nil {
				_ = errutil.Handle(ctx, markErr, "failed to mark outbox row failed")
			}
			result.Failed++
			continue
		}
		result.Sent++
	}

	return result, nil
}

// candidates merges the three eligibility queries in priority order:
// PENDING first, then FAILED rows that predate retry scheduling, then FAILED
// rows whose retry time has elapsed.
func (x *OutboxUseCase) candidates(ctx context.Context, repo interfaces.OutboxRepository) ([]*model.OutboxRow, error) {
	pending, err := repo.ListPending(ctx, x.batchSize)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list pending outbox rows")
	}
	unscheduled, err := repo.ListFailedUnscheduled(ctx, x.batchSize)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list unscheduled failed outbox rows")
	}
	due, err := repo.ListFailedDue(ctx, x.now().UTC(), x.batchSize)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list due outbox rows")
	}

	seen := make(map[int64]struct{})
	var rows []*model.OutboxRow
	for _, row := range append(append(pending, unscheduled...), due...) {
		if _, ok := seen[row.ID]; ok {
			continue
		}
		seen[row.ID] = struct{}{}
		rows = append(rows, row)
		if len(rows) == x.batchSize {
			break
		}
	}
	return rows, nil
}

// deliverSheet posts the row to the sheet webhook, then chains exactly one
// notification row. The chain enqueue is idempotent on (source row key,
// template, recipient), so re-delivery after a lost SENT update cannot fan
// out twice.
func (x *OutboxUseCase) deliverSheet(ctx context.Context, row *model.OutboxRow) error {
	if err := x.sheet.Post(ctx, row.Payload); err != nil {
		return err
	}

	chained := &model.OutboxRow{
		RowKey:       model.NotificationRowKey(row.RowKey, x.template, x.recipient),
		Payload:      row.Payload,
		Status:       types.OutboxStatusPending,
		SourceRowKey: row.RowKey,
		Template:     x.template,
		Recipient:    x.recipient,
	}
	if _, err := x.repo.NotificationOutbox().Enqueue(ctx, chained); err != nil {
		return goerr.Wrap(err, "failed to chain notification row",
			goerr.V("source_row_key", row.RowKey))
	}

	return nil
}

func (x *OutboxUseCase) deliverNotification(ctx context.Context, row *model.OutboxRow) error {
	fields := map[string]string{
		"severity":    payloadString(row.Payload, "severity"),
		"alert_type":  payloadString(row.Payload, "alert_type"),
		"source_type": payloadString(row.Payload, "source_type"),
		"source_id":   payloadString(row.Payload, "source_id"),
	}
	return x.notifier.Notify(ctx,
		payloadString(row.Payload, "title"),
		payloadString(row.Payload, "message"),
		fields,
	)
}

func payloadString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

// backoff returns min(base * 2^retryCount, max), where retryCount is the
// count before this failure.
func (x *OutboxUseCase) backoff(retryCount int) time.Duration {
	delay := x.backoffBase
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= x.backoffMax {
			return x.backoffMax
		}
	}
	if delay > x.backoffMax {
		return x.backoffMax
	}
	return delay
}
