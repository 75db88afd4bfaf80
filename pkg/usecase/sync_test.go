package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/kvca-ops/enrolsync/pkg/domain/model"
	"github.com/kvca-ops/enrolsync/pkg/domain/types"
	"github.com/kvca-ops/enrolsync/pkg/repository/memory"
	"github.com/kvca-ops/enrolsync/pkg/service/kvca"
	"github.com/kvca-ops/enrolsync/pkg/usecase"
)

type mockSource struct {
	categories  func(ctx context.Context) ([]kvca.Object, error)
	courses     func(ctx context.Context, categoryID int) ([]kvca.Object, error)
	classStatus func(ctx context.Context, courseID int) ([]kvca.Object, error)
	detail      func(ctx context.Context, termID int, userID string) (kvca.Object, error)
}

func (x *mockSource) Categories(ctx context.Context) ([]kvca.Object, error) {
	if x.categories == nil {
		return []kvca.Object{{"id": 24}}, nil
	}
	return x.categories(ctx)
}

func (x *mockSource) CoursesByCategory(ctx context.Context, categoryID int) ([]kvca.Object, error) {
	if x.courses == nil {
		return []kvca.Object{{"courseid": 101}}, nil
	}
	return x.courses(ctx, categoryID)
}

func (x *mockSource) ClassStatusAll(ctx context.Context, courseID int) ([]kvca.Object, error) {
	if x.classStatus == nil {
		return nil, nil
	}
	return x.classStatus(ctx, courseID)
}

func (x *mockSource) EnrolmentUserInfo(ctx context.Context, termID int, userID string) (kvca.Object, error) {
	if x.detail == nil {
		return kvca.Object{}, nil
	}
	return x.detail(ctx, termID, userID)
}

type stubSink struct {
	mu    sync.Mutex
	posts []map[string]any
	err   error
}

func (x *stubSink) Post(ctx context.Context, payload map[string]any) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.err != nil {
		return x.err
	}
	x.posts = append(x.posts, payload)
	return nil
}

type stubNotifier struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (x *stubNotifier) Notify(ctx context.Context, title, text string, fields map[string]string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.err != nil {
		return x.err
	}
	x.titles = append(x.titles, title)
	return nil
}

func statusRow(userID, status, gcDate, sjcDate string) kvca.Object {
	return kvca.Object{
		"user": map[string]any{
			"userId":   userID,
			"userName": "Kim " + userID,
			"email":    userID + "@example.com",
		},
		"classStatus": map[string]any{
			"status":   status,
			"ds_date":  "2026-01-02 03:04:05",
			"gc_date":  gcDate,
			"sjc_date": sjcDate,
		},
	}
}

func TestSyncRun(t *testing.T) {
	ctx := context.Background()

	t.Run("first run raises a low severity NEW alert for a DS row", func(t *testing.T) {
		repo := memory.New()
		source := &mockSource{
			classStatus: func(ctx context.Context, courseID int) ([]kvca.Object, error) {
				return []kvca.Object{statusRow("u1", "DS", "empty", "empty")}, nil
			},
		}
		sink := &stubSink{}
		uc := usecase.New(repo, source, usecase.WithSheetSink(sink))

		summary, err := uc.Sync.Run(ctx, usecase.SyncInput{})
		gt.NoError(t, err).Required()

		gt.Number(t, summary.CategoriesProcessed).Equal(1)
		gt.Number(t, summary.CoursesProcessed).Equal(1)
		gt.Number(t, summary.StatusRowsProcessed).Equal(1)
		gt.Number(t, summary.SourceRecordsUpserts).Equal(1)
		gt.Number(t, summary.NewRecords).Equal(1)
		gt.Number(t, summary.ChangedRecords).Equal(0)
		gt.Number(t, summary.CreatedAlerts).Equal(1)
		gt.B(t, summary.LockAcquired).True()

		alerts, err := repo.Alert().List(ctx, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, alerts).Length(1)
		gt.Value(t, alerts[0].AlertType).Equal(types.AlertTypeNew)
		gt.Value(t, alerts[0].Severity).Equal(types.SeverityLow)
		gt.Value(t, alerts[0].SourceID).Equal("24:u1")

		pending, err := repo.SheetOutbox().ListPending(ctx, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, pending).Length(1)
	})

	t.Run("identical rerun changes nothing and raises nothing", func(t *testing.T) {
		repo := memory.New()
		source := &mockSource{
			classStatus: func(ctx context.Context, courseID int) ([]kvca.Object, error) {
				return []kvca.Object{statusRow("u1", "DS", "empty", "empty")}, nil
			},
		}
		uc := usecase.New(repo, source)

		_, err := uc.Sync.Run(ctx, usecase.SyncInput{})
		gt.NoError(t, err).Required()

		summary, err := uc.Sync.Run(ctx, usecase.SyncInput{})
		gt.NoError(t, err).Required()
		gt.Number(t, summary.NewRecords).Equal(0)
		gt.Number(t, summary.ChangedRecords).Equal(0)
		gt.Number(t, summary.CreatedAlerts).Equal(0)

		alerts, err := repo.Alert().List(ctx, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, alerts).Length(1)
	})

	t.Run("payment date appearing raises a high severity CHANGED alert", func(t *testing.T) {
		repo := memory.New()
		gcDate := "empty"
		source := &mockSource{
			classStatus: func(ctx context.Context, courseID int) ([]kvca.Object, error) {
				return []kvca.Object{statusRow("u1", "GC", gcDate, "empty")}, nil
			},
		}
		uc := usecase.New(repo, source)

		_, err := uc.Sync.Run(ctx, usecase.SyncInput{})
		gt.NoError(t, err).Required()

		gcDate = "2026-01-03 10:00:00"
		summary, err := uc.Sync.Run(ctx, usecase.SyncInput{})
		gt.NoError(t, err).Required()
		gt.Number(t, summary.ChangedRecords).Equal(1)
		gt.Number(t, summary.CreatedAlerts).Equal(1)

		alerts, err := repo.Alert().List(ctx, 1)
		gt.NoError(t, err).Required()
		gt.Array(t, alerts).Length(1).Required()
		gt.Value(t, alerts[0].AlertType).Equal(types.AlertTypeChanged)
		gt.Value(t, alerts[0].Severity).Equal(types.SeverityHigh)
	})

	t.Run("detail records are stored but never alert", func(t *testing.T) {
		repo := memory.New()
		source := &mockSource{
			classStatus: func(ctx context.Context, courseID int) ([]kvca.Object, error) {
				return []kvca.Object{statusRow("u1", "DS", "empty", "empty")}, nil
			},
			detail: func(ctx context.Context, termID int, userID string) (kvca.Object, error) {
				return kvca.Object{"userName": "Kim u1", "companyName": "ACME"}, nil
			},
		}
		uc := usecase.New(repo, source)

		summary, err := uc.Sync.Run(ctx, usecase.SyncInput{})
		gt.NoError(t, err).Required()
		gt.Number(t, summary.DetailsProcessed).Equal(1)
		gt.Number(t, summary.SourceRecordsUpserts).Equal(2)
		gt.Number(t, summary.NewRecords).Equal(2)
		gt.Number(t, summary.CreatedAlerts).Equal(1)

		detail, err := repo.Record().Get(ctx, model.RecordKey{
			SourceType: types.SourceTypeEnrolmentUserDetail,
			SourceID:   "24:u1",
		})
		gt.NoError(t, err).Required()
		gt.Value(t, detail.CompanyName).Equal("ACME")
	})

	t.Run("failed detail call skips only that user", func(t *testing.T) {
		repo := memory.New()
		source := &mockSource{
			classStatus: func(ctx context.Context, courseID int) ([]kvca.Object, error) {
				return []kvca.Object{statusRow("u1", "DS", "empty", "empty")}, nil
			},
			detail: func(ctx context.Context, termID int, userID string) (kvca.Object, error) {
				return nil, goerr.New("detail exploded")
			},
		}
		uc := usecase.New(repo, source)

		summary, err := uc.Sync.Run(ctx, usecase.SyncInput{})
		gt.NoError(t, err).Required()
		gt.Number(t, summary.FailedDetailCalls).Equal(1)
		gt.Number(t, summary.DetailsProcessed).Equal(0)
		gt.Number(t, summary.SourceRecordsUpserts).Equal(1)
	})

	t.Run("course conflict skips the category and keeps the run green", func(t *testing.T) {
		repo := memory.New()
		source := &mockSource{
			categories: func(ctx context.Context) ([]kvca.Object, error) {
				return []kvca.Object{{"id": 24}, {"id": 25}}, nil
			},
			courses: func(ctx context.Context, categoryID int) ([]kvca.Object, error) {
				if categoryID == 24 {
					return nil, goerr.New("course list conflict", goerr.V("status_code", 409))
				}
				return []kvca.Object{{"courseid": 201}}, nil
			},
			classStatus: func(ctx context.Context, courseID int) ([]kvca.Object, error) {
				return []kvca.Object{statusRow("u2", "DS", "empty", "empty")}, nil
			},
		}
		uc := usecase.New(repo, source)

		summary, err := uc.Sync.Run(ctx, usecase.SyncInput{})
		gt.NoError(t, err).Required()
		gt.Number(t, summary.FailedCourseCalls).Equal(1)
		gt.Number(t, summary.CoursesProcessed).Equal(1)
		gt.Number(t, summary.StatusRowsProcessed).Equal(1)
	})

	t.Run("upstream 503 fails the run and raises a high severity job alert", func(t *testing.T) {
		repo := memory.New()
		source := &mockSource{
			classStatus: func(ctx context.Context, courseID int) ([]kvca.Object, error) {
				return nil, goerr.New("upstream broken", goerr.V("status_code", 503))
			},
		}
		uc := usecase.New(repo, source)

		_, err := uc.Sync.Run(ctx, usecase.SyncInput{})
		gt.Error(t, err)

		run, err := repo.Run().Get(ctx, 1)
		gt.NoError(t, err).Required()
		gt.Value(t, run.Status).Equal(types.RunStatusFailed)
		gt.B(t, run.ErrorMessage != "").True()

		alerts, err := repo.Alert().List(ctx, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, alerts).Length(1).Required()
		gt.Value(t, alerts[0].AlertType).Equal(types.AlertTypeFailed)
		gt.Value(t, alerts[0].Severity).Equal(types.SeverityHigh)
		gt.Value(t, alerts[0].SourceType).Equal(types.SourceTypeJob)
		gt.Value(t, alerts[0].SourceID).Equal("enrolment_sync:HTTP_5XX")

		pending, err := repo.SheetOutbox().ListPending(ctx, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, pending).Length(1)
	})

	t.Run("held lock yields ErrLockConflict and no run log", func(t *testing.T) {
		repo := memory.New()
		acquired, err := repo.Lock().Acquire(ctx, "enrolment_sync", "another-instance", time.Minute)
		gt.NoError(t, err).Required()
		gt.B(t, acquired).True()

		uc := usecase.New(repo, &mockSource{})
		summary, err := uc.Sync.Run(ctx, usecase.SyncInput{})
		gt.Error(t, err)
		gt.B(t, errors.Is(err, usecase.ErrLockConflict)).True()
		gt.B(t, summary.LockAcquired).False()

		_, err = repo.Run().Get(ctx, 1)
		gt.Error(t, err)
	})

	t.Run("lock is released after the run", func(t *testing.T) {
		repo := memory.New()
		uc := usecase.New(repo, &mockSource{})

		_, err := uc.Sync.Run(ctx, usecase.SyncInput{})
		gt.NoError(t, err).Required()

		lock, err := repo.Lock().Get(ctx, "enrolment_sync")
		gt.NoError(t, err).Required()
		gt.Value(t, lock).Nil()
	})

	t.Run("explicit category skips discovery", func(t *testing.T) {
		repo := memory.New()
		categoriesCalled := false
		source := &mockSource{
			categories: func(ctx context.Context) ([]kvca.Object, error) {
				categoriesCalled = true
				return nil, nil
			},
			classStatus: func(ctx context.Context, courseID int) ([]kvca.Object, error) {
				return []kvca.Object{statusRow("u1", "DS", "empty", "empty")}, nil
			},
		}
		uc := usecase.New(repo, source)

		categoryID := 42
		summary, err := uc.Sync.Run(ctx, usecase.SyncInput{CategoryID: &categoryID})
		gt.NoError(t, err).Required()
		gt.B(t, categoriesCalled).False()
		gt.Number(t, summary.CategoriesProcessed).Equal(1)

		record, err := repo.Record().Get(ctx, model.RecordKey{
			SourceType: types.SourceTypeEnrolmentStatus,
			SourceID:   "42:u1",
		})
		gt.NoError(t, err).Required()
		gt.Number(t, record.TermID).Equal(42)
	})

	t.Run("max users per course truncates rows", func(t *testing.T) {
		repo := memory.New()
		source := &mockSource{
			classStatus: func(ctx context.Context, courseID int) ([]kvca.Object, error) {
				return []kvca.Object{
					statusRow("u1", "DS", "empty", "empty"),
					statusRow("u2", "DS", "empty", "empty"),
					statusRow("u3", "DS", "empty", "empty"),
				}, nil
			},
		}
		uc := usecase.New(repo, source)

		summary, err := uc.Sync.Run(ctx, usecase.SyncInput{MaxUsersPerCourse: 2})
		gt.NoError(t, err).Required()
		gt.Number(t, summary.StatusRowsProcessed).Equal(2)
	})

	t.Run("user id falls back to email", func(t *testing.T) {
		repo := memory.New()
		source := &mockSource{
			classStatus: func(ctx context.Context, courseID int) ([]kvca.Object, error) {
				row := statusRow("", "DS", "empty", "empty")
				user := row["user"].(map[string]any)
				delete(user, "userId")
				user["email"] = "fallback@example.com"
				return []kvca.Object{row}, nil
			},
		}
		uc := usecase.New(repo, source)

		_, err := uc.Sync.Run(ctx, usecase.SyncInput{})
		gt.NoError(t, err).Required()

		record, err := repo.Record().Get(ctx, model.RecordKey{
			SourceType: types.SourceTypeEnrolmentStatus,
			SourceID:   "24:fallback@example.com",
		})
		gt.NoError(t, err).Required()
		gt.Value(t, record.UserID).Equal("fallback@example.com")
	})

	t.Run("row without a classStatus block still becomes a record", func(t *testing.T) {
		repo := memory.New()
		source := &mockSource{
			classStatus: func(ctx context.Context, courseID int) ([]kvca.Object, error) {
				row := statusRow("u1", "DS", "empty", "empty")
				delete(row, "classStatus")
				return []kvca.Object{row}, nil
			},
		}
		uc := usecase.New(repo, source)

		summary, err := uc.Sync.Run(ctx, usecase.SyncInput{})
		gt.NoError(t, err).Required()
		gt.Number(t, summary.SourceRecordsUpserts).Equal(1)
		gt.Number(t, summary.NewRecords).Equal(1)

		record, err := repo.Record().Get(ctx, model.RecordKey{
			SourceType: types.SourceTypeEnrolmentStatus,
			SourceID:   "24:u1",
		})
		gt.NoError(t, err).Required()
		gt.Value(t, record.Status).Equal("")

		alerts, err := repo.Alert().List(ctx, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, alerts).Length(1).Required()
		gt.Value(t, alerts[0].AlertType).Equal(types.AlertTypeNew)
		gt.Value(t, alerts[0].Severity).Equal(types.SeverityMedium)
	})

	t.Run("row with a malformed classStatus block is dropped", func(t *testing.T) {
		repo := memory.New()
		source := &mockSource{
			classStatus: func(ctx context.Context, courseID int) ([]kvca.Object, error) {
				row := statusRow("u1", "DS", "empty", "empty")
				row["classStatus"] = "oops"
				return []kvca.Object{row}, nil
			},
		}
		uc := usecase.New(repo, source)

		summary, err := uc.Sync.Run(ctx, usecase.SyncInput{})
		gt.NoError(t, err).Required()
		gt.Number(t, summary.StatusRowsProcessed).Equal(1)
		gt.Number(t, summary.SourceRecordsUpserts).Equal(0)
	})

	t.Run("failed run error message is capped", func(t *testing.T) {
		repo := memory.New()
		source := &mockSource{
			classStatus: func(ctx context.Context, courseID int) ([]kvca.Object, error) {
				return nil, goerr.New(strings.Repeat("x", 4000), goerr.V("status_code", 503))
			},
		}
		uc := usecase.New(repo, source)

		_, err := uc.Sync.Run(ctx, usecase.SyncInput{})
		gt.Error(t, err)

		run, err := repo.Run().Get(ctx, 1)
		gt.NoError(t, err).Required()
		gt.Value(t, run.Status).Equal(types.RunStatusFailed)
		gt.Number(t, len(run.ErrorMessage)).Equal(1500)
	})

	t.Run("redacted payload fields never reach storage", func(t *testing.T) {
		repo := memory.New()
		source := &mockSource{
			classStatus: func(ctx context.Context, courseID int) ([]kvca.Object, error) {
				row := statusRow("u1", "DS", "empty", "empty")
				user := row["user"].(map[string]any)
				user["userPassword"] = "secret"
				user["juminNumber"] = "123456-1234567"
				return []kvca.Object{row}, nil
			},
		}
		uc := usecase.New(repo, source)

		_, err := uc.Sync.Run(ctx, usecase.SyncInput{})
		gt.NoError(t, err).Required()

		record, err := repo.Record().Get(ctx, model.RecordKey{
			SourceType: types.SourceTypeEnrolmentStatus,
			SourceID:   "24:u1",
		})
		gt.NoError(t, err).Required()
		user := record.Payload["user"].(map[string]any)
		_, hasPassword := user["userPassword"]
		gt.B(t, hasPassword).False()
		_, hasJumin := user["juminNumber"]
		gt.B(t, hasJumin).False()
	})
}
