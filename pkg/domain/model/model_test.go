package model_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/kvca-ops/enrolsync/pkg/domain/model"
	"github.com/kvca-ops/enrolsync/pkg/domain/types"
)

func TestPayloadHash(t *testing.T) {
	t.Run("identical payloads hash equal regardless of key order", func(t *testing.T) {
		a := map[string]any{"user": "u1", "status": "GC", "nested": map[string]any{"x": 1, "y": 2}}
		b := map[string]any{"nested": map[string]any{"y": 2, "x": 1}, "status": "GC", "user": "u1"}

		gt.Value(t, model.PayloadHash(a)).Equal(model.PayloadHash(b))
	})

	t.Run("different payloads hash differently", func(t *testing.T) {
		a := map[string]any{"status": "DS"}
		b := map[string]any{"status": "GC"}

		gt.Value(t, model.PayloadHash(a)).NotEqual(model.PayloadHash(b))
	})

	t.Run("hash is hex encoded sha-256", func(t *testing.T) {
		gt.Number(t, len(model.PayloadHash(map[string]any{"k": "v"}))).Equal(64)
	})
}

func TestRedactPayload(t *testing.T) {
	t.Run("drops sensitive keys recursively", func(t *testing.T) {
		payload := map[string]any{
			"userId":       "u1",
			"userPassword": "secret",
			"user": map[string]any{
				"juminNumber": "123456-1234567",
				"userName":    "Kim",
			},
			"tokens": []any{
				map[string]any{"accessToken": "t", "kind": "access"},
			},
		}

		redacted := model.RedactObject(payload, model.DefaultSensitiveKeys())

		gt.Value(t, redacted["userId"]).Equal("u1")
		_, hasPassword := redacted["userPassword"]
		gt.B(t, hasPassword).False()

		user := gt.Cast[map[string]any](t, redacted["user"])
		_, hasJumin := user["juminNumber"]
		gt.B(t, hasJumin).False()
		gt.Value(t, user["userName"]).Equal("Kim")

		tokens := gt.Cast[[]any](t, redacted["tokens"])
		token := gt.Cast[map[string]any](t, tokens[0])
		_, hasToken := token["accessToken"]
		gt.B(t, hasToken).False()
		gt.Value(t, token["kind"]).Equal("access")
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		payload := map[string]any{"accessToken": "t", "keep": "v"}
		_ = model.RedactObject(payload, model.DefaultSensitiveKeys())

		gt.Value(t, payload["accessToken"]).Equal("t")
	})

	t.Run("redaction changes the hash only when a sensitive key existed", func(t *testing.T) {
		withSecret := map[string]any{"userId": "u1", "refreshToken": "r"}
		withoutSecret := map[string]any{"userId": "u1"}

		redacted := model.RedactObject(withSecret, model.DefaultSensitiveKeys())
		gt.Value(t, model.PayloadHash(redacted)).Equal(model.PayloadHash(withoutSecret))
	})
}

func TestAlertRowKey(t *testing.T) {
	alert := func() *model.Alert {
		return &model.Alert{
			ID:         model.NewAlertID(),
			SourceType: types.SourceTypeEnrolmentStatus,
			SourceID:   "24:u1",
			AlertType:  types.AlertTypeNew,
			Title:      "[NEW] Kim GC",
			Message:    "enrolment NEW",
			Detail:     map[string]any{"status": "GC"},
		}
	}

	t.Run("stable across alert IDs", func(t *testing.T) {
		a := alert()
		b := alert()
		gt.Value(t, a.ID).NotEqual(b.ID)
		gt.Value(t, a.RowKey()).Equal(b.RowKey())
	})

	t.Run("changes with content", func(t *testing.T) {
		a := alert()
		b := alert()
		b.Message = "enrolment CHANGED"
		gt.Value(t, a.RowKey()).NotEqual(b.RowKey())
	})
}

func TestNotificationRowKey(t *testing.T) {
	key := model.NotificationRowKey("src", "alert", "slack:default")
	gt.Value(t, key).Equal(model.NotificationRowKey("src", "alert", "slack:default"))
	gt.Value(t, key).NotEqual(model.NotificationRowKey("src", "alert", "slack:other"))
	gt.Value(t, key).NotEqual(model.NotificationRowKey("src", "digest", "slack:default"))
}

func TestJobLock(t *testing.T) {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	t.Run("expired exactly at expiry", func(t *testing.T) {
		lock := &model.JobLock{ExpiresAt: now}
		gt.B(t, lock.Expired(now)).True()
	})

	t.Run("not expired before expiry", func(t *testing.T) {
		lock := &model.JobLock{ExpiresAt: now.Add(time.Second)}
		gt.B(t, lock.Expired(now)).False()
	})

	t.Run("owner identity is unique per call", func(t *testing.T) {
		gt.Value(t, model.NewLockOwner()).NotEqual(model.NewLockOwner())
	})
}

func TestSourceRecordFlags(t *testing.T) {
	now := time.Now()

	t.Run("paid and doc ready follow date presence", func(t *testing.T) {
		record := &model.SourceRecord{}
		gt.B(t, record.IsPaid()).False()
		gt.B(t, record.IsDocReady()).False()

		record.GCDate = &now
		record.SJCDate = &now
		gt.B(t, record.IsPaid()).True()
		gt.B(t, record.IsDocReady()).True()
	})

	t.Run("snapshot carries hash and payload", func(t *testing.T) {
		record := &model.SourceRecord{
			SourceType:  types.SourceTypeEnrolmentStatus,
			SourceID:    "24:u1",
			Payload:     map[string]any{"status": "GC"},
			PayloadHash: "abc",
		}
		snapshot := record.ToSnapshot()
		gt.Value(t, snapshot.SourceType).Equal(types.SourceTypeEnrolmentStatus)
		gt.Value(t, snapshot.SourceID).Equal("24:u1")
		gt.Value(t, snapshot.SnapshotHash).Equal("abc")
		gt.Value(t, snapshot.Payload["status"]).Equal("GC")
	})
}
