package interfaces

import (
	"context"
	"time"

	"github.com/kvca-ops/enrolsync/pkg/domain/model"
	"github.com/kvca-ops/enrolsync/pkg/domain/types"
)

// AlertRepository persists alerts and answers the cooldown lookback
type AlertRepository interface {
	// Insert stores alert rows.
	Insert(ctx context.Context, alerts []*model.Alert) error

	// ExistsSince reports whether an alert with the same identity was
	// created at or after since. This is a point-in-time query against the
	// store, not a cache, so it holds across process restarts.
	ExistsSince(ctx context.Context, sourceType types.SourceType, sourceID string, alertType types.AlertType, since time.Time) (bool, error)

	// List returns the most recent alerts, newest first.
	List(ctx context.Context, limit int) ([]*model.Alert, error)
}
