package interfaces

import (
	"context"
	"time"

	"github.com/kvca-ops/enrolsync/pkg/domain/model"
	"github.com/kvca-ops/enrolsync/pkg/domain/types"
)

// OutboxRepository backs one outbox table. The dispatcher combines the three
// candidate lists in priority order; the repository only answers them.
type OutboxRepository interface {
	// Enqueue inserts a PENDING row unless a row with the same RowKey
	// already exists. It returns true when a row was inserted.
	Enqueue(ctx context.Context, row *model.OutboxRow) (bool, error)

	// ListPending returns PENDING rows, oldest first.
	ListPending(ctx context.Context, limit int) ([]*model.OutboxRow, error)

	// ListFailedUnscheduled returns FAILED rows with no retry time, oldest
	// first. These are rows whose failure predates retry scheduling.
	ListFailedUnscheduled(ctx context.Context, limit int) ([]*model.OutboxRow, error)

	// ListFailedDue returns FAILED rows whose retry time has elapsed,
	// soonest first.
	ListFailedDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboxRow, error)

	// Claim transitions the row to PROCESSING only if its status still
	// equals expected. A false return means another dispatcher won the row.
	Claim(ctx context.Context, id int64, expected types.OutboxStatus) (bool, error)

	// MarkSent finalizes a delivered row.
	MarkSent(ctx context.Context, id int64) error

	// MarkFailed records a delivery failure with the next retry schedule.
	MarkFailed(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, lastError string) error

	// Get returns one row by id.
	Get(ctx context.Context, id int64) (*model.OutboxRow, error)
}
