package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/kvca-ops/enrolsync/pkg/domain/types"
)

// AlertID is a UUID-based identifier for Alert
type AlertID string

// NewAlertID generates a new UUID v4 AlertID
func NewAlertID() AlertID {
	return AlertID(uuid.New().String())
}

// Alert is a business-significant NEW/CHANGED/FAILED event raised by the
// diff engine or by run-failure classification. Resolution is a human
// workflow outside this system; Resolved is persisted but never set here.
type Alert struct {
	ID         AlertID
	SourceType types.SourceType
	SourceID   string
	AlertType  types.AlertType
	Severity   types.Severity
	Title      string
	Message    string
	Detail     map[string]any
	Resolved   bool
	CreatedAt  time.Time
}

// RowKey returns the stable dedup key for this alert's sheet-outbox row.
// Two alerts with identical identifying fields and content produce the same
// key, which makes repeated enqueue attempts idempotent no-ops.
func (a *Alert) RowKey() string {
	detail, err := json.Marshal(a.Detail)
	if err != nil {
		detail = []byte("{}")
	}
	return hashFields(
		string(a.SourceType),
		a.SourceID,
		string(a.AlertType),
		a.Title,
		a.Message,
		string(detail),
	)
}
