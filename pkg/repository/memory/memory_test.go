package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/kvca-ops/enrolsync/pkg/domain/model"
	"github.com/kvca-ops/enrolsync/pkg/domain/types"
	"github.com/kvca-ops/enrolsync/pkg/repository/memory"
)

func statusRecord(sourceID, hash string) *model.SourceRecord {
	return &model.SourceRecord{
		SourceType:  types.SourceTypeEnrolmentStatus,
		SourceID:    sourceID,
		UserID:      "u1",
		Status:      "GC",
		Payload:     map[string]any{"status": "GC"},
		PayloadHash: hash,
	}
}

func TestRecordRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("hashes of unknown keys are absent", func(t *testing.T) {
		repo := memory.New()
		hashes, err := repo.Record().GetHashes(ctx, []model.RecordKey{
			{SourceType: types.SourceTypeEnrolmentStatus, SourceID: "24:u1"},
		})
		gt.NoError(t, err).Required()
		gt.Number(t, len(hashes)).Equal(0)
	})

	t.Run("upsert then read back hash", func(t *testing.T) {
		repo := memory.New()
		record := statusRecord("24:u1", "h1")
		gt.NoError(t, repo.Record().UpsertAll(ctx, []*model.SourceRecord{record})).Required()

		hashes, err := repo.Record().GetHashes(ctx, []model.RecordKey{record.Key()})
		gt.NoError(t, err).Required()
		gt.Value(t, hashes[record.Key()]).Equal("h1")

		record2 := statusRecord("24:u1", "h2")
		gt.NoError(t, repo.Record().UpsertAll(ctx, []*model.SourceRecord{record2}))

		hashes, err = repo.Record().GetHashes(ctx, []model.RecordKey{record.Key()})
		gt.NoError(t, err).Required()
		gt.Value(t, hashes[record.Key()]).Equal("h2")
	})

	t.Run("stored record is isolated from caller mutation", func(t *testing.T) {
		repo := memory.New()
		record := statusRecord("24:u1", "h1")
		gt.NoError(t, repo.Record().UpsertAll(ctx, []*model.SourceRecord{record})).Required()

		record.Payload["status"] = "mutated"

		stored, err := repo.Record().Get(ctx, record.Key())
		gt.NoError(t, err).Required()
		gt.Value(t, stored.Payload["status"]).Equal("GC")
	})

	t.Run("snapshots accumulate per version", func(t *testing.T) {
		repo := memory.New()
		a := statusRecord("24:u1", "h1")
		b := statusRecord("24:u1", "h2")
		gt.NoError(t, repo.Record().AppendSnapshots(ctx, []*model.Snapshot{a.ToSnapshot()}))
		gt.NoError(t, repo.Record().AppendSnapshots(ctx, []*model.Snapshot{b.ToSnapshot()}))
	})
}

func TestLockRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh acquire succeeds and conflicts for others", func(t *testing.T) {
		repo := memory.New()
		acquired, err := repo.Lock().Acquire(ctx, "enrolment_sync", "owner-a", time.Minute)
		gt.NoError(t, err).Required()
		gt.B(t, acquired).True()

		acquired, err = repo.Lock().Acquire(ctx, "enrolment_sync", "owner-b", time.Minute)
		gt.NoError(t, err).Required()
		gt.B(t, acquired).False()
	})

	t.Run("same owner refreshes its own lease", func(t *testing.T) {
		repo := memory.New()
		_, err := repo.Lock().Acquire(ctx, "enrolment_sync", "owner-a", time.Minute)
		gt.NoError(t, err).Required()

		acquired, err := repo.Lock().Acquire(ctx, "enrolment_sync", "owner-a", time.Minute)
		gt.NoError(t, err).Required()
		gt.B(t, acquired).True()
	})

	t.Run("expired lease can be taken over", func(t *testing.T) {
		repo := memory.New()
		_, err := repo.Lock().Acquire(ctx, "enrolment_sync", "owner-a", -time.Second)
		gt.NoError(t, err).Required()

		acquired, err := repo.Lock().Acquire(ctx, "enrolment_sync", "owner-b", time.Minute)
		gt.NoError(t, err).Required()
		gt.B(t, acquired).True()

		lock, err := repo.Lock().Get(ctx, "enrolment_sync")
		gt.NoError(t, err).Required()
		gt.Value(t, lock.LockedBy).Equal("owner-b")
	})

	t.Run("release by stale owner is a no-op", func(t *testing.T) {
		repo := memory.New()
		_, err := repo.Lock().Acquire(ctx, "enrolment_sync", "owner-a", time.Minute)
		gt.NoError(t, err).Required()

		gt.NoError(t, repo.Lock().Release(ctx, "enrolment_sync", "owner-b"))

		lock, err := repo.Lock().Get(ctx, "enrolment_sync")
		gt.NoError(t, err).Required()
		gt.Value(t, lock.LockedBy).Equal("owner-a")
	})

	t.Run("release by owner frees the lease", func(t *testing.T) {
		repo := memory.New()
		_, err := repo.Lock().Acquire(ctx, "enrolment_sync", "owner-a", time.Minute)
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.Lock().Release(ctx, "enrolment_sync", "owner-a"))

		lock, err := repo.Lock().Get(ctx, "enrolment_sync")
		gt.NoError(t, err).Required()
		gt.Value(t, lock).Nil()
	})
}

func TestAlertRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("exists since respects identity and window", func(t *testing.T) {
		repo := memory.New()
		now := time.Now().UTC()
		alert := &model.Alert{
			ID:         model.NewAlertID(),
			SourceType: types.SourceTypeEnrolmentStatus,
			SourceID:   "24:u1",
			AlertType:  types.AlertTypeNew,
			Severity:   types.SeverityMedium,
			CreatedAt:  now,
		}
		gt.NoError(t, repo.Alert().Insert(ctx, []*model.Alert{alert})).Required()

		exists, err := repo.Alert().ExistsSince(ctx, types.SourceTypeEnrolmentStatus, "24:u1", types.AlertTypeNew, now.Add(-time.Minute))
		gt.NoError(t, err).Required()
		gt.B(t, exists).True()

		// Different alert type does not match
		exists, err = repo.Alert().ExistsSince(ctx, types.SourceTypeEnrolmentStatus, "24:u1", types.AlertTypeChanged, now.Add(-time.Minute))
		gt.NoError(t, err).Required()
		gt.B(t, exists).False()

		// Outside the window does not match
		exists, err = repo.Alert().ExistsSince(ctx, types.SourceTypeEnrolmentStatus, "24:u1", types.AlertTypeNew, now.Add(time.Minute))
		gt.NoError(t, err).Required()
		gt.B(t, exists).False()
	})

	t.Run("list returns newest first", func(t *testing.T) {
		repo := memory.New()
		old := &model.Alert{ID: model.NewAlertID(), SourceID: "old", CreatedAt: time.Now().Add(-time.Hour)}
		recent := &model.Alert{ID: model.NewAlertID(), SourceID: "recent", CreatedAt: time.Now()}
		gt.NoError(t, repo.Alert().Insert(ctx, []*model.Alert{old, recent})).Required()

		alerts, err := repo.Alert().List(ctx, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, alerts).Length(2)
		gt.Value(t, alerts[0].SourceID).Equal("recent")
	})
}

func TestOutboxRepository(t *testing.T) {
	ctx := context.Background()

	enqueue := func(t *testing.T, repo *memory.Memory, key string) *model.OutboxRow {
		t.Helper()
		row := &model.OutboxRow{RowKey: key, Payload: map[string]any{"title": key}}
		inserted, err := repo.SheetOutbox().Enqueue(ctx, row)
		gt.NoError(t, err).Required()
		gt.B(t, inserted).True()
		rows, err := repo.SheetOutbox().ListPending(ctx, 100)
		gt.NoError(t, err).Required()
		for _, r := range rows {
			if r.RowKey == key {
				return r
			}
		}
		t.Fatalf("row %s not found after enqueue", key)
		return nil
	}

	t.Run("enqueue dedups by row key", func(t *testing.T) {
		repo := memory.New()
		enqueue(t, repo, "k1")

		inserted, err := repo.SheetOutbox().Enqueue(ctx, &model.OutboxRow{RowKey: "k1"})
		gt.NoError(t, err).Required()
		gt.B(t, inserted).False()

		rows, err := repo.SheetOutbox().ListPending(ctx, 100)
		gt.NoError(t, err).Required()
		gt.Array(t, rows).Length(1)
	})

	t.Run("claim succeeds once per expected status", func(t *testing.T) {
		repo := memory.New()
		row := enqueue(t, repo, "k1")

		claimed, err := repo.SheetOutbox().Claim(ctx, row.ID, types.OutboxStatusPending)
		gt.NoError(t, err).Required()
		gt.B(t, claimed).True()

		claimed, err = repo.SheetOutbox().Claim(ctx, row.ID, types.OutboxStatusPending)
		gt.NoError(t, err).Required()
		gt.B(t, claimed).False()
	})

	t.Run("failed rows move between eligibility lists", func(t *testing.T) {
		repo := memory.New()
		row := enqueue(t, repo, "k1")
		now := time.Now().UTC()

		_, err := repo.SheetOutbox().Claim(ctx, row.ID, types.OutboxStatusPending)
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.SheetOutbox().MarkFailed(ctx, row.ID, 1, now.Add(time.Minute), "boom")).Required()

		pending, err := repo.SheetOutbox().ListPending(ctx, 100)
		gt.NoError(t, err).Required()
		gt.Array(t, pending).Length(0)

		due, err := repo.SheetOutbox().ListFailedDue(ctx, now, 100)
		gt.NoError(t, err).Required()
		gt.Array(t, due).Length(0)

		due, err = repo.SheetOutbox().ListFailedDue(ctx, now.Add(2*time.Minute), 100)
		gt.NoError(t, err).Required()
		gt.Array(t, due).Length(1)
		gt.Value(t, due[0].LastError).Equal("boom")
		gt.Number(t, due[0].RetryCount).Equal(1)
	})

	t.Run("sent rows leave every list", func(t *testing.T) {
		repo := memory.New()
		row := enqueue(t, repo, "k1")

		_, err := repo.SheetOutbox().Claim(ctx, row.ID, types.OutboxStatusPending)
		gt.NoError(t, err).Required()
		gt.NoError(t, repo.SheetOutbox().MarkSent(ctx, row.ID)).Required()

		pending, err := repo.SheetOutbox().ListPending(ctx, 100)
		gt.NoError(t, err).Required()
		gt.Array(t, pending).Length(0)

		stored, err := repo.SheetOutbox().Get(ctx, row.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, stored.Status).Equal(types.OutboxStatusSent)
	})

	t.Run("sheet and notification outboxes are separate", func(t *testing.T) {
		repo := memory.New()
		enqueue(t, repo, "k1")

		rows, err := repo.NotificationOutbox().ListPending(ctx, 100)
		gt.NoError(t, err).Required()
		gt.Array(t, rows).Length(0)
	})
}

func TestRunRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("start and finish round trip", func(t *testing.T) {
		repo := memory.New()
		runID, err := repo.Run().Start(ctx, "enrolment_sync", types.TriggerTypeManual)
		gt.NoError(t, err).Required()
		gt.Number(t, runID).NotEqual(0)

		summary := &model.SyncSummary{StatusRowsProcessed: 5, FailedDetailCalls: 1}
		gt.NoError(t, repo.Run().Finish(ctx, runID, types.RunStatusSuccess, summary, "")).Required()

		run, err := repo.Run().Get(ctx, runID)
		gt.NoError(t, err).Required()
		gt.Value(t, run.Status).Equal(types.RunStatusSuccess)
		gt.Value(t, run.TriggerType).Equal(types.TriggerTypeManual)
		gt.Number(t, run.TotalRecords).Equal(5)
	})

	t.Run("failed run stores the error message", func(t *testing.T) {
		repo := memory.New()
		runID, err := repo.Run().Start(ctx, "enrolment_sync", types.TriggerTypeManual)
		gt.NoError(t, err).Required()

		gt.NoError(t, repo.Run().Finish(ctx, runID, types.RunStatusFailed, &model.SyncSummary{}, "upstream 503")).Required()

		run, err := repo.Run().Get(ctx, runID)
		gt.NoError(t, err).Required()
		gt.Value(t, run.Status).Equal(types.RunStatusFailed)
		gt.Value(t, run.ErrorMessage).Equal("upstream 503")
	})
}
