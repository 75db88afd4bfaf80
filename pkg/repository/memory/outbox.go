package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/kvca-ops/enrolsync/pkg/domain/model"
	"github.com/kvca-ops/enrolsync/pkg/domain/types"
)

type outboxRepository struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*model.OutboxRow
	byKey  map[string]int64
}

func newOutboxRepository() *outboxRepository {
	return &outboxRepository{
		nextID: 1,
		rows:   make(map[int64]*model.OutboxRow),
		byKey:  make(map[string]int64),
	}
}

func copyRow(row *model.OutboxRow) *model.OutboxRow {
	copied := *row
	copied.Payload = copyPayload(row.Payload)
	copied.NextRetryAt = copyTime(row.NextRetryAt)
	return &copied
}

func (r *outboxRepository) Enqueue(ctx context.Context, row *model.OutboxRow) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[row.RowKey]; exists {
		return false, nil
	}

	now := time.Now().UTC()
	stored := copyRow(row)
	stored.ID = r.nextID
	stored.Status = types.OutboxStatusPending
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.nextID++
	r.rows[stored.ID] = stored
	r.byKey[stored.RowKey] = stored.ID
	return true, nil
}

func (r *outboxRepository) ListPending(ctx context.Context, limit int) ([]*model.OutboxRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.filter(func(row *model.OutboxRow) bool {
		return row.Status == types.OutboxStatusPending
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	return truncateRows(rows, limit), nil
}

func (r *outboxRepository) ListFailedUnscheduled(ctx context.Context, limit int) ([]*model.OutboxRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.filter(func(row *model.OutboxRow) bool {
		return row.Status == types.OutboxStatusFailed && row.NextRetryAt == nil
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	return truncateRows(rows, limit), nil
}

func (r *outboxRepository) ListFailedDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboxRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.filter(func(row *model.OutboxRow) bool {
		return row.Status == types.OutboxStatusFailed &&
			row.NextRetryAt != nil && !row.NextRetryAt.After(now)
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].NextRetryAt.Before(*rows[j].NextRetryAt) })
	return truncateRows(rows, limit), nil
}

func (r *outboxRepository) Claim(ctx context.Context, id int64, expected types.OutboxStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok || row.Status != expected {
		return false, nil
	}
	row.Status = types.OutboxStatusProcessing
	row.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return goerr.Wrap(ErrNotFound, "outbox row not found", goerr.V("id", id))
	}
	row.Status = types.OutboxStatusSent
	row.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return goerr.Wrap(ErrNotFound, "outbox row not found", goerr.V("id", id))
	}
	row.Status = types.OutboxStatusFailed
	row.RetryCount = retryCount
	row.NextRetryAt = &nextRetryAt
	row.LastError = lastError
	row.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *outboxRepository) Get(ctx context.Context, id int64) (*model.OutboxRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "outbox row not found", goerr.V("id", id))
	}
	return copyRow(row), nil
}

func (r *outboxRepository) filter(keep func(*model.OutboxRow) bool) []*model.OutboxRow {
	var rows []*model.OutboxRow
	for _, row := range r.rows {
		if keep(row) {
			rows = append(rows, copyRow(row))
		}
	}
	return rows
}

func truncateRows(rows []*model.OutboxRow, limit int) []*model.OutboxRow {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
