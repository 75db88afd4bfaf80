package model

import (
	"time"

	"github.com/kvca-ops/enrolsync/pkg/domain/types"
)

// OutboxRow is a durable delivery task. The same shape backs two tables:
// sheet_outbox (enqueued by the persistence engine with the alert payload)
// and notification_outbox (enqueued by the dispatcher when a sheet row is
// delivered). Rows are never deleted; SENT and retry-exhausted FAILED rows
// remain for audit.
type OutboxRow struct {
	ID          int64
	RowKey      string
	Payload     map[string]any
	Status      types.OutboxStatus
	RetryCount  int
	NextRetryAt *time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Chaining fields, set on notification rows only
	SourceRowKey string
	Template     string
	Recipient    string
}

// NotificationRowKey builds the dedup key of a chained notification row.
// A sheet row delivered twice (retry after a lost SENT update, concurrent
// dispatchers) must not fan out into two notifications.
func NotificationRowKey(sourceRowKey, template, recipient string) string {
	return hashFields(sourceRowKey, template, recipient)
}
