package config

import (
	"time"

	"github.com/urfave/cli/v3"

	"github.com/kvca-ops/enrolsync/pkg/usecase"
)

// Sync holds CLI flags for the sync engine tunables
type Sync struct {
	lockTTLSeconds     int
	cooldownMinutes    int
	dispatchBatchSize  int
	backoffBaseSeconds int
	backoffMaxSeconds  int
}

// Flags returns CLI flags for the sync engine
func (x *Sync) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "job-lock-ttl-seconds",
			Category:    "Sync",
			Usage:       "TTL of the job lease; a crashed run becomes takeable after this",
			Value:       900,
			Sources:     cli.EnvVars("ENROLSYNC_JOB_LOCK_TTL_SECONDS"),
			Destination: &x.lockTTLSeconds,
		},
		&cli.IntFlag{
			Name:        "alert-cooldown-minutes",
			Category:    "Sync",
			Usage:       "Suppress identical-identity alerts raised within this window",
			Value:       30,
			Sources:     cli.EnvVars("ENROLSYNC_ALERT_COOLDOWN_MINUTES", "ALERT_COOLDOWN_MINUTES"),
			Destination: &x.cooldownMinutes,
		},
		&cli.IntFlag{
			Name:        "dispatch-batch-size",
			Category:    "Sync",
			Usage:       "Maximum outbox rows handled per dispatch pass",
			Value:       20,
			Sources:     cli.EnvVars("ENROLSYNC_DISPATCH_BATCH_SIZE"),
			Destination: &x.dispatchBatchSize,
		},
		&cli.IntFlag{
			Name:        "dispatch-backoff-base-seconds",
			Category:    "Sync",
			Usage:       "Initial outbox retry delay",
			Value:       30,
			Sources:     cli.EnvVars("ENROLSYNC_DISPATCH_BACKOFF_BASE_SECONDS"),
			Destination: &x.backoffBaseSeconds,
		},
		&cli.IntFlag{
			Name:        "dispatch-backoff-max-seconds",
			Category:    "Sync",
			Usage:       "Cap on the outbox retry delay",
			Value:       3600,
			Sources:     cli.EnvVars("ENROLSYNC_DISPATCH_BACKOFF_MAX_SECONDS"),
			Destination: &x.backoffMaxSeconds,
		},
	}
}

// Configure folds the flags into the engine config, starting from defaults.
func (x *Sync) Configure() usecase.Config {
	cfg := usecase.DefaultConfig()
	cfg.LockTTL = time.Duration(x.lockTTLSeconds) * time.Second
	cfg.AlertCooldown = time.Duration(x.cooldownMinutes) * time.Minute
	cfg.DispatchBatchSize = x.dispatchBatchSize
	cfg.BackoffBase = time.Duration(x.backoffBaseSeconds) * time.Second
	cfg.BackoffMax = time.Duration(x.backoffMaxSeconds) * time.Second
	return cfg
}
