package interfaces

import (
	"context"

	"github.com/kvca-ops/enrolsync/pkg/domain/model"
)

// RecordRepository persists the current-state table and the append-only
// snapshot history.
type RecordRepository interface {
	// GetHashes returns the stored payload hash for each of the given keys
	// that exists. Missing keys are absent from the result map.
	GetHashes(ctx context.Context, keys []model.RecordKey) (map[model.RecordKey]string, error)

	// UpsertAll writes records to the current-state table, keyed by
	// (source_type, source_id).
	UpsertAll(ctx context.Context, records []*model.SourceRecord) error

	// AppendSnapshots inserts one immutable history row per record version.
	AppendSnapshots(ctx context.Context, snapshots []*model.Snapshot) error

	// Get returns the current state of one record.
	Get(ctx context.Context, key model.RecordKey) (*model.SourceRecord, error)
}
