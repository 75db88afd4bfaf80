package model

import (
	"os"
	"time"

	"github.com/google/uuid"
)

// JobLock is a TTL-bounded exclusive lease on a named job, stored in the
// backing store. It is the only mutual-exclusion boundary between process
// instances; there is no in-process locking around a run.
type JobLock struct {
	JobName    string
	LockedBy   string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the lease can be taken over
func (l *JobLock) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// NewLockOwner builds a lease owner identity unique to this process.
// The hostname prefix is for operators reading the job_lock table.
func NewLockOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return host + "-" + uuid.New().String()
}
