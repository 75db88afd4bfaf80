package config

import (
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"

	"github.com/kvca-ops/enrolsync/pkg/usecase"
)

// Policy is the optional TOML policy file. It overrides the redaction key
// set and the alert cooldown without redeploying.
type Policy struct {
	path string
}

type policyFile struct {
	Redaction struct {
		Keys []string `toml:"keys"`
	} `toml:"redaction"`
	Alert struct {
		CooldownMinutes int `toml:"cooldown_minutes"`
	} `toml:"alert"`
}

// Flags returns CLI flags for the policy file
func (x *Policy) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "policy",
			Category:    "Sync",
			Usage:       "Path to a TOML policy file (redaction keys, alert cooldown)",
			Sources:     cli.EnvVars("ENROLSYNC_POLICY"),
			Destination: &x.path,
		},
	}
}

// Apply overlays the policy file onto cfg. A missing flag is a no-op; a
// configured path that does not exist is an error.
func (x *Policy) Apply(cfg *usecase.Config) error {
	if x.path == "" {
		return nil
	}

	raw, err := os.ReadFile(x.path)
	if err != nil {
		if os.IsNotExist(err) {
			return goerr.Wrap(ErrPolicyNotFound, "policy file missing", goerr.V("path", x.path))
		}
		return goerr.Wrap(err, "failed to read policy file", goerr.V("path", x.path))
	}

	var policy policyFile
	if err := toml.Unmarshal(raw, &policy); err != nil {
		return goerr.Wrap(err, "failed to parse policy file", goerr.V("path", x.path))
	}

	if len(policy.Redaction.Keys) > 0 {
		cfg.SensitiveKeys = policy.Redaction.Keys
	}
	if policy.Alert.CooldownMinutes > 0 {
		cfg.AlertCooldown = time.Duration(policy.Alert.CooldownMinutes) * time.Minute
	}

	return nil
}
