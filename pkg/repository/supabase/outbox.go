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

type outboxRow struct {
	ID           int64          `json:"id,omitempty"`
	RowKey       string         `json:"row_key"`
	Payload      map[string]any `json:"payload"`
	Status       string         `json:"status"`
	RetryCount   int            `json:"retry_count"`
	NextRetryAt  *time.Time     `json:"next_retry_at"`
	LastError    *string        `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at,omitempty"`
	SourceRowKey *string        `json:"source_row_key,omitempty"`
	Template     *string        `json:"template,omitempty"`
	Recipient    *string        `json:"recipient,omitempty"`
}

// outboxRepository backs both outbox tables; table selects which one
type outboxRepository struct {
	client *client
	table  string
}

func rowToOutbox(row *outboxRow) *model.OutboxRow {
	return &model.OutboxRow{
		ID:           row.ID,
		RowKey:       row.RowKey,
		Payload:      row.Payload,
		Status:       types.OutboxStatus(row.Status),
		RetryCount:   row.RetryCount,
		NextRetryAt:  row.NextRetryAt,
		LastError:    derefString(row.LastError),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		SourceRowKey: derefString(row.SourceRowKey),
		Template:     derefString(row.Template),
		Recipient:    derefString(row.Recipient),
	}
}

// Enqueue inserts with on_conflict=row_key and ignore-duplicates, so the
// returned representation is empty exactly when the row already existed.
func (r *outboxRepository) Enqueue(ctx context.Context, row *model.OutboxRow) (bool, error) {
	insert := outboxRow{
		RowKey:       row.RowKey,
		Payload:      row.Payload,
		Status:       string(types.OutboxStatusPending),
		SourceRowKey: optString(row.SourceRowKey),
		Template:     optString(row.Template),
		Recipient:    optString(row.Recipient),
	}

	query := url.Values{}
	query.Set("on_conflict", "row_key")
	data, err := r.client.call(ctx, http.MethodPost, r.table, query, preferIgnoreDup, []outboxRow{insert})
	if err != nil {
		return false, goerr.Wrap(err, "failed to enqueue outbox row",
			goerr.V("table", r.table), goerr.V("row_key", row.RowKey))
	}
	rows, err := decodeRows[outboxRow](data)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (r *outboxRepository) ListPending(ctx context.Context, limit int) ([]*model.OutboxRow, error) {
	query := url.Values{}
	query.Set("status", "eq."+string(types.OutboxStatusPending))
	query.Set("order", "created_at.asc")
	query.Set("limit", strconv.Itoa(limit))
	return r.list(ctx, query)
}

func (r *outboxRepository) ListFailedUnscheduled(ctx context.Context, limit int) ([]*model.OutboxRow, error) {
	query := url.Values{}
	query.Set("status", "eq."+string(types.OutboxStatusFailed))
	query.Set("next_retry_at", "is.null")
	query.Set("order", "created_at.asc")
	query.Set("limit", strconv.Itoa(limit))
	return r.list(ctx, query)
}

func (r *outboxRepository) ListFailedDue(ctx context.Context, now time.Time, limit int) ([]*model.OutboxRow, error) {
	query := url.Values{}
	query.Set("status", "eq."+string(types.OutboxStatusFailed))
	query.Set("next_retry_at", "lte."+formatTime(now))
	query.Set("order", "next_retry_at.asc")
	query.Set("limit", strconv.Itoa(limit))
	return r.list(ctx, query)
}

func (r *outboxRepository) list(ctx context.Context, query url.Values) ([]*model.OutboxRow, error) {
	data, err := r.client.call(ctx, http.MethodGet, r.table, query, "", nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list outbox rows", goerr.V("table", r.table))
	}
	rows, err := decodeRows[outboxRow](data)
	if err != nil {
		return nil, err
	}
	out := make([]*model.OutboxRow, len(rows))
	for i := range rows {
		out[i] = rowToOutbox(&rows[i])
	}
	return out, nil
}

// Claim is the optimistic row claim: the PATCH only matches while the row's
// status still equals what the dispatcher read.
func (r *outboxRepository) Claim(ctx context.Context, id int64, expected types.OutboxStatus) (bool, error) {
	query := url.Values{}
	query.Set("id", "eq."+strconv.FormatInt(id, 10))
	query.Set("status", "eq."+string(expected))

	patch := map[string]any{
		"status":     string(types.OutboxStatusProcessing),
		"updated_at": formatTime(time.Now().UTC()),
	}
	affected, err := r.client.affected(ctx, http.MethodPatch, r.table, query, patch)
	if err != nil {
		return false, goerr.Wrap(err, "failed to claim outbox row",
			goerr.V("table", r.table), goerr.V("id", id))
	}
	return affected > 0, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id int64) error {
	query := url.Values{}
	query.Set("id", "eq."+strconv.FormatInt(id, 10))

	patch := map[string]any{
		"status":     string(types.OutboxStatusSent),
		"updated_at": formatTime(time.Now().UTC()),
	}
	if _, err := r.client.call(ctx, http.MethodPatch, r.table, query, preferMinimal, patch); err != nil {
		return goerr.Wrap(err, "failed to mark outbox row sent",
			goerr.V("table", r.table), goerr.V("id", id))
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, lastError string) error {
	query := url.Values{}
	query.Set("id", "eq."+strconv.FormatInt(id, 10))

	patch := map[string]any{
		"status":        string(types.OutboxStatusFailed),
		"retry_count":   retryCount,
		"next_retry_at": formatTime(nextRetryAt),
		"last_error":    lastError,
		"updated_at":    formatTime(time.Now().UTC()),
	}
	if _, err := r.client.call(ctx, http.MethodPatch, r.table, query, preferMinimal, patch); err != nil {
		return goerr.Wrap(err, "failed to mark outbox row failed",
			goerr.V("table", r.table), goerr.V("id", id))
	}
	return nil
}

func (r *outboxRepository) Get(ctx context.Context, id int64) (*model.OutboxRow, error) {
	query := url.Values{}
	query.Set("id", "eq."+strconv.FormatInt(id, 10))
	query.Set("limit", "1")

	data, err := r.client.call(ctx, http.MethodGet, r.table, query, "", nil)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[outboxRow](data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, goerr.Wrap(ErrNotFound, "outbox row not found",
			goerr.V("table", r.table), goerr.V("id", id))
	}
	return rowToOutbox(&rows[0]), nil
}
