package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kvca-ops/enrolsync/pkg/domain/model"
)

type lockRepository struct {
	mu    sync.Mutex
	locks map[string]*model.JobLock
}

func newLockRepository() *lockRepository {
	return &lockRepository{
		locks: make(map[string]*model.JobLock),
	}
}

// Acquire follows the same three conditional paths as the REST backend:
// fresh insert, takeover of an expired lease, refresh of an owned lease.
func (r *lockRepository) Acquire(ctx context.Context, jobName, owner string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	current, exists := r.locks[jobName]
	if !exists {
		r.locks[jobName] = &model.JobLock{
			JobName:    jobName,
			LockedBy:   owner,
			AcquiredAt: now,
			ExpiresAt:  now.Add(ttl),
		}
		return true, nil
	}

	if current.Expired(now) || current.LockedBy == owner {
		r.locks[jobName] = &model.JobLock{
			JobName:    jobName,
			LockedBy:   owner,
			AcquiredAt: now,
			ExpiresAt:  now.Add(ttl),
		}
		return true, nil
	}

	return false, nil
}

func (r *lockRepository) Release(ctx context.Context, jobName, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.locks[jobName]
	if !exists || current.LockedBy != owner {
		// Stale ownership releases nothing
		return nil
	}
	delete(r.locks, jobName)
	return nil
}

func (r *lockRepository) Get(ctx context.Context, jobName string) (*model.JobLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.locks[jobName]
	if !exists {
		return nil, nil
	}
	copied := *current
	return &copied, nil
}
