package usecase

import "github.com/m-mizutani/goerr/v2"

// ErrLockConflict means another instance holds the job lease. Trigger
// surfaces map this to HTTP 409.
var ErrLockConflict = goerr.New("job is already running (job_lock active)")
