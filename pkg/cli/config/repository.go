package config

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/kvca-ops/enrolsync/pkg/domain/interfaces"
	"github.com/kvca-ops/enrolsync/pkg/repository/memory"
	"github.com/kvca-ops/enrolsync/pkg/repository/supabase"
	"github.com/kvca-ops/enrolsync/pkg/utils/logging"
)

// Repository holds CLI flags for the storage backend
type Repository struct {
	backend    string
	url        string
	serviceKey string
	timeoutMS  int

	resolved string
}

// Flags returns CLI flags for storage configuration
func (x *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Category:    "Storage",
			Usage:       "Storage backend (auto, supabase or memory). auto picks supabase when its credentials are set",
			Value:       "auto",
			Sources:     cli.EnvVars("ENROLSYNC_REPOSITORY_BACKEND"),
			Destination: &x.backend,
		},
		&cli.StringFlag{
			Name:        "supabase-url",
			Category:    "Storage",
			Usage:       "Supabase project URL",
			Sources:     cli.EnvVars("ENROLSYNC_SUPABASE_URL", "SUPABASE_URL"),
			Destination: &x.url,
		},
		&cli.StringFlag{
			Name:        "supabase-service-role-key",
			Category:    "Storage",
			Usage:       "Supabase service role key",
			Sources:     cli.EnvVars("ENROLSYNC_SUPABASE_SERVICE_ROLE_KEY", "SUPABASE_SERVICE_ROLE_KEY"),
			Destination: &x.serviceKey,
		},
		&cli.IntFlag{
			Name:        "supabase-timeout-ms",
			Category:    "Storage",
			Usage:       "Per-request timeout in milliseconds",
			Value:       15000,
			Sources:     cli.EnvVars("ENROLSYNC_SUPABASE_TIMEOUT_MS", "SUPABASE_REQUEST_TIMEOUT_MS"),
			Destination: &x.timeoutMS,
		},
	}
}

// Backend returns the backend that Configure resolved to.
func (x *Repository) Backend() string {
	return x.resolved
}

// Configure initializes the repository. The caller is responsible for
// calling Close() on it. With the default auto backend, supabase is used
// when both credentials are present, memory otherwise; setting only one
// credential is a configuration error rather than a silent fallback.
func (x *Repository) Configure(ctx context.Context) (interfaces.Repository, error) {
	backend := x.backend
	if backend == "auto" || backend == "" {
		switch {
		case x.url != "" && x.serviceKey != "":
			backend = "supabase"
		case x.url != "" || x.serviceKey != "":
			return nil, ErrPartialSupabase
		default:
			backend = "memory"
		}
	}

	switch backend {
	case "supabase":
		if x.url == "" || x.serviceKey == "" {
			return nil, goerr.Wrap(ErrInvalidConfig, "supabase-url and supabase-service-role-key are required for the supabase backend")
		}
		repo, err := supabase.New(x.url, x.serviceKey, time.Duration(x.timeoutMS)*time.Millisecond)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize supabase repository")
		}
		x.resolved = "supabase"
		logging.From(ctx).Info("Using Supabase repository", "url", x.url)
		return repo, nil

	case "memory":
		x.resolved = "memory"
		logging.From(ctx).Info("Using in-memory repository (no backing store configured)")
		return memory.New(), nil

	default:
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid repository backend", goerr.V("backend", x.backend))
	}
}
