package supabase

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/kvca-ops/enrolsync/pkg/domain/model"
)

type lockRow struct {
	JobName    string    `json:"job_name"`
	LockedBy   string    `json:"locked_by"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type lockRepository struct {
	client *client
}

// Acquire emulates compare-and-swap over PostgREST filters. Each path is a
// single conditional write; job_name is unique so at most one row exists.
func (r *lockRepository) Acquire(ctx context.Context, jobName, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	row := lockRow{
		JobName:    jobName,
		LockedBy:   owner,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	// Path 1: fresh insert. A unique violation surfaces as HTTP 409.
	status, _, err := r.client.do(ctx, http.MethodPost, "job_lock", nil, preferMinimal, []lockRow{row})
	if err != nil {
		return false, goerr.Wrap(err, "failed to insert job lock", goerr.V("job_name", jobName))
	}
	if status >= 200 && status < 300 {
		return true, nil
	}
	if status != http.StatusConflict {
		return false, goerr.New("job lock insert returned error status",
			goerr.V("job_name", jobName), goerr.V("status_code", status))
	}

	patch := map[string]any{
		"locked_by":   owner,
		"acquired_at": formatTime(now),
		"expires_at":  formatTime(now.Add(ttl)),
	}

	// Path 2: take over an expired lease
	query := url.Values{}
	query.Set("job_name", "eq."+jobName)
	query.Set("expires_at", "lt."+formatTime(now))
	affected, err := r.client.affected(ctx, http.MethodPatch, "job_lock", query, patch)
	if err != nil {
		return false, goerr.Wrap(err, "failed to take over job lock", goerr.V("job_name", jobName))
	}
	if affected > 0 {
		return true, nil
	}

	// Path 3: refresh a lease this owner already holds
	query = url.Values{}
	query.Set("job_name", "eq."+jobName)
	query.Set("locked_by", "eq."+owner)
	affected, err = r.client.affected(ctx, http.MethodPatch, "job_lock", query, patch)
	if err != nil {
		return false, goerr.Wrap(err, "failed to refresh job lock", goerr.V("job_name", jobName))
	}
	return affected > 0, nil
}

func (r *lockRepository) Release(ctx context.Context, jobName, owner string) error {
	query := url.Values{}
	query.Set("job_name", "eq."+jobName)
	query.Set("locked_by", "eq."+owner)

	// Zero affected rows means the lease expired or was taken over; both
	// are no-ops for the releaser.
	if _, err := r.client.affected(ctx, http.MethodDelete, "job_lock", query, nil); err != nil {
		return goerr.Wrap(err, "failed to release job lock", goerr.V("job_name", jobName))
	}
	return nil
}

func (r *lockRepository) Get(ctx context.Context, jobName string) (*model.JobLock, error) {
	query := url.Values{}
	query.Set("job_name", "eq."+jobName)
	query.Set("limit", "1")

	data, err := r.client.call(ctx, http.MethodGet, "job_lock", query, "", nil)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[lockRow](data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	return &model.JobLock{
		JobName:    row.JobName,
		LockedBy:   row.LockedBy,
		AcquiredAt: row.AcquiredAt,
		ExpiresAt:  row.ExpiresAt,
	}, nil
}
