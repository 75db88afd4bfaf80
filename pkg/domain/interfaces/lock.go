package interfaces

import (
	"context"
	"time"

	"github.com/kvca-ops/enrolsync/pkg/domain/model"
)

// LockRepository implements the named TTL lease. All three acquire paths and
// release are single conditional writes; no path spans a transaction.
type LockRepository interface {
	// Acquire attempts, in order: insert a fresh lease; take over a lease
	// whose expiry has passed; refresh a lease already held by owner.
	// It returns false when another owner holds an unexpired lease.
	Acquire(ctx context.Context, jobName, owner string, ttl time.Duration) (bool, error)

	// Release deletes the lease only if it is still owned by owner.
	// Stale or expired ownership is a no-op, not an error.
	Release(ctx context.Context, jobName, owner string) error

	// Get returns the current lease row, or nil when the job is not leased.
	Get(ctx context.Context, jobName string) (*model.JobLock, error)
}
