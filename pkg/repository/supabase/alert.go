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

type alertRow struct {
	ID         string         `json:"id"`
	SourceType string         `json:"source_type"`
	SourceID   string         `json:"source_id"`
	AlertType  string         `json:"alert_type"`
	Severity   string         `json:"severity"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Detail     map[string]any `json:"detail"`
	Resolved   bool           `json:"resolved"`
	CreatedAt  time.Time      `json:"created_at"`
}

type alertRepository struct {
	client *client
}

func (r *alertRepository) Insert(ctx context.Context, alerts []*model.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]alertRow, len(alerts))
	for i, alert := range alerts {
		id := alert.ID
		if id == "" {
			id = model.NewAlertID()
		}
		createdAt := alert.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		rows[i] = alertRow{
			ID:         string(id),
			SourceType: string(alert.SourceType),
			SourceID:   alert.SourceID,
			AlertType:  string(alert.AlertType),
			Severity:   string(alert.Severity),
			Title:      alert.Title,
			Message:    alert.Message,
			Detail:     alert.Detail,
			Resolved:   alert.Resolved,
			CreatedAt:  createdAt,
		}
	}

	if _, err := r.client.call(ctx, http.MethodPost, "alert", nil, preferMinimal, rows); err != nil {
		return goerr.Wrap(err, "failed to insert alerts", goerr.V("count", len(rows)))
	}
	return nil
}

func (r *alertRepository) ExistsSince(ctx context.Context, sourceType types.SourceType, sourceID string, alertType types.AlertType, since time.Time) (bool, error) {
	query := url.Values{}
	query.Set("select", "id")
	query.Set("source_type", "eq."+string(sourceType))
	query.Set("source_id", "eq."+sourceID)
	query.Set("alert_type", "eq."+string(alertType))
	query.Set("created_at", "gte."+formatTime(since))
	query.Set("limit", "1")

	data, err := r.client.call(ctx, http.MethodGet, "alert", query, "", nil)
	if err != nil {
		return false, goerr.Wrap(err, "failed to query alert cooldown",
			goerr.V("source_type", sourceType), goerr.V("source_id", sourceID))
	}
	rows, err := decodeRows[alertRow](data)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (r *alertRepository) List(ctx context.Context, limit int) ([]*model.Alert, error) {
	query := url.Values{}
	query.Set("order", "created_at.desc")
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	data, err := r.client.call(ctx, http.MethodGet, "alert", query, "", nil)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[alertRow](data)
	if err != nil {
		return nil, err
	}

	alerts := make([]*model.Alert, len(rows))
	for i, row := range rows {
		alerts[i] = &model.Alert{
			ID:         model.AlertID(row.ID),
			SourceType: types.SourceType(row.SourceType),
			SourceID:   row.SourceID,
			AlertType:  types.AlertType(row.AlertType),
			Severity:   types.Severity(row.Severity),
			Title:      row.Title,
			Message:    row.Message,
			Detail:     row.Detail,
			Resolved:   row.Resolved,
			CreatedAt:  row.CreatedAt,
		}
	}
	return alerts, nil
}
