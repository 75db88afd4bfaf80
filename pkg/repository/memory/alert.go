package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kvca-ops/enrolsync/pkg/domain/model"
	"github.com/kvca-ops/enrolsync/pkg/domain/types"
)

type alertRepository struct {
	mu     sync.RWMutex
	alerts []*model.Alert
}

func newAlertRepository() *alertRepository {
	return &alertRepository{}
}

func copyAlert(a *model.Alert) *model.Alert {
	copied := *a
	copied.Detail = copyPayload(a.Detail)
	return &copied
}

func (r *alertRepository) Insert(ctx context.Context, alerts []*model.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, alert := range alerts {
		stored := copyAlert(alert)
		if stored.ID == "" {
			stored.ID = model.NewAlertID()
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		r.alerts = append(r.alerts, stored)
	}
	return nil
}

func (r *alertRepository) ExistsSince(ctx context.Context, sourceType types.SourceType, sourceID string, alertType types.AlertType, since time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, alert := range r.alerts {
		if alert.SourceType == sourceType &&
			alert.SourceID == sourceID &&
			alert.AlertType == alertType &&
			!alert.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *alertRepository) List(ctx context.Context, limit int) ([]*model.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alerts := make([]*model.Alert, 0, len(r.alerts))
	for _, alert := range r.alerts {
		alerts = append(alerts, copyAlert(alert))
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
	if limit > 0 && len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}
