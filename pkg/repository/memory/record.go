package memory

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/kvca-ops/enrolsync/pkg/domain/model"
)

type recordRepository struct {
	mu        sync.RWMutex
	records   map[model.RecordKey]*model.SourceRecord
	snapshots []*model.Snapshot
}

func newRecordRepository() *recordRepository {
	return &recordRepository{
		records: make(map[model.RecordKey]*model.SourceRecord),
	}
}

// copyRecord creates a deep copy of a source record
func copyRecord(r *model.SourceRecord) *model.SourceRecord {
	copied := *r
	copied.DSDate = copyTime(r.DSDate)
	copied.GCDate = copyTime(r.GCDate)
	copied.SJCDate = copyTime(r.SJCDate)
	copied.UpdateTime = copyTime(r.UpdateTime)
	copied.Payload = copyPayload(r.Payload)
	return &copied
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyPayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	copied := make(map[string]any, len(p))
	for k, v := range p {
		copied[k] = v
	}
	return copied
}

func (r *recordRepository) GetHashes(ctx context.Context, keys []model.RecordKey) (map[model.RecordKey]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hashes := make(map[model.RecordKey]string, len(keys))
	for _, key := range keys {
		if rec, ok := r.records[key]; ok {
			hashes[key] = rec.PayloadHash
		}
	}
	return hashes, nil
}

func (r *recordRepository) UpsertAll(ctx context.Context, records []*model.SourceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, rec := range records {
		stored := copyRecord(rec)
		if stored.LastSeenAt.IsZero() {
			stored.LastSeenAt = now
		}
		r.records[stored.Key()] = stored
	}
	return nil
}

func (r *recordRepository) AppendSnapshots(ctx context.Context, snapshots []*model.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, snap := range snapshots {
		stored := *snap
		stored.Payload = copyPayload(snap.Payload)
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		r.snapshots = append(r.snapshots, &stored)
	}
	return nil
}

func (r *recordRepository) Get(ctx context.Context, key model.RecordKey) (*model.SourceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[key]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "source record not found",
			goerr.V("source_type", key.SourceType), goerr.V("source_id", key.SourceID))
	}
	return copyRecord(rec), nil
}
