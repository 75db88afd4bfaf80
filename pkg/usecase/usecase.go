// Package usecase implements the enrolment sync engine: the lease-guarded
// sync orchestrator, the diff/alert persistence engine, and the outbox
// dispatcher.
package usecase

import (
	"time"

	"github.com/kvca-ops/enrolsync/pkg/domain/interfaces"
	"github.com/kvca-ops/enrolsync/pkg/domain/model"
	"github.com/kvca-ops/enrolsync/pkg/service/kvca"
	"github.com/kvca-ops/enrolsync/pkg/service/slackhook"
	"github.com/kvca-ops/enrolsync/pkg/service/webhook"
)

// Config carries the tunables shared across the use cases.
type Config struct {
	JobName       string
	LockTTL       time.Duration
	AlertCooldown time.Duration
	SensitiveKeys []string

	DispatchBatchSize int
	BackoffBase       time.Duration
	BackoffMax        time.Duration

	NotifyTemplate  string
	NotifyRecipient string
}

func DefaultConfig() Config {
	return Config{
		JobName:           "enrolment_sync",
		LockTTL:           15 * time.Minute,
		AlertCooldown:     30 * time.Minute,
		SensitiveKeys:     model.DefaultSensitiveKeys(),
		DispatchBatchSize: 20,
		BackoffBase:       30 * time.Second,
		BackoffMax:        time.Hour,
		NotifyTemplate:    "alert",
		NotifyRecipient:   "slack:default",
	}
}

type UseCases struct {
	repo     interfaces.Repository
	source   kvca.Service
	sheet    webhook.Sink
	notifier slackhook.Notifier
	config   Config
	now      func() time.Time

	Sync    *SyncUseCase
	Persist *PersistUseCase
	Outbox  *OutboxUseCase
}

type Option func(*UseCases)

func WithSheetSink(sink webhook.Sink) Option {
	return func(uc *UseCases) {
		uc.sheet = sink
	}
}

func WithNotifier(notifier slackhook.Notifier) Option {
	return func(uc *UseCases) {
		uc.notifier = notifier
	}
}

func WithConfig(config Config) Option {
	return func(uc *UseCases) {
		uc.config = config
	}
}

func WithNow(now func() time.Time) Option {
	return func(uc *UseCases) {
		uc.now = now
	}
}

func New(repo interfaces.Repository, source kvca.Service, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:     repo,
		source:   source,
		sheet:    webhook.New(""),
		notifier: slackhook.New(""),
		config:   DefaultConfig(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Persist = &PersistUseCase{
		repo:     uc.repo,
		cooldown: uc.config.AlertCooldown,
		now:      uc.now,
	}
	uc.Sync = &SyncUseCase{
		repo:          uc.repo,
		source:        uc.source,
		persist:       uc.Persist,
		jobName:       uc.config.JobName,
		lockTTL:       uc.config.LockTTL,
		owner:         model.NewLockOwner(),
		sensitiveKeys: uc.config.SensitiveKeys,
		now:           uc.now,
	}
	uc.Outbox = &OutboxUseCase{
		repo:        uc.repo,
		sheet:       uc.sheet,
		notifier:    uc.notifier,
		batchSize:   uc.config.DispatchBatchSize,
		backoffBase: uc.config.BackoffBase,
		backoffMax:  uc.config.BackoffMax,
		template:    uc.config.NotifyTemplate,
		recipient:   uc.config.NotifyRecipient,
		now:         uc.now,
	}

	return uc
}
