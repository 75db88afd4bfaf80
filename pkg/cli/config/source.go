package config

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/kvca-ops/enrolsync/pkg/service/kvca"
)

const defaultSourceBaseURL = "https://edu.kvca.or.kr"

// Source holds CLI flags for the KVCA source API client
type Source struct {
	baseURL    string
	userID     string
	password   string
	timeoutMS  int
	tokenSkewS int
	retryOn401 bool
}

// Flags returns CLI flags for the source API. The bare env var names match
// the names the deployment already uses.
func (x *Source) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "kvca-base-url",
			Category:    "Source API",
			Usage:       "KVCA base URL (host or scheme://host)",
			Value:       defaultSourceBaseURL,
			Sources:     cli.EnvVars("ENROLSYNC_KVCA_BASE_URL", "KVCA_BASE_URL"),
			Destination: &x.baseURL,
		},
		&cli.StringFlag{
			Name:        "kvca-user-id",
			Category:    "Source API",
			Usage:       "KVCA admin user ID",
			Required:    true,
			Sources:     cli.EnvVars("ENROLSYNC_KVCA_USER_ID", "KVCA_ADMIN_USER_ID"),
			Destination: &x.userID,
		},
		&cli.StringFlag{
			Name:        "kvca-password",
			Category:    "Source API",
			Usage:       "KVCA admin user password",
			Required:    true,
			Sources:     cli.EnvVars("ENROLSYNC_KVCA_PASSWORD", "KVCA_ADMIN_USER_PASSWORD"),
			Destination: &x.password,
		},
		&cli.IntFlag{
			Name:        "kvca-timeout-ms",
			Category:    "Source API",
			Usage:       "Per-request timeout in milliseconds",
			Value:       15000,
			Sources:     cli.EnvVars("ENROLSYNC_KVCA_TIMEOUT_MS", "KVCA_REQUEST_TIMEOUT_MS"),
			Destination: &x.timeoutMS,
		},
		&cli.IntFlag{
			Name:        "kvca-token-skew-seconds",
			Category:    "Source API",
			Usage:       "Token expiry safety margin in seconds",
			Value:       60,
			Sources:     cli.EnvVars("ENROLSYNC_KVCA_TOKEN_SKEW_SECONDS", "KVCA_TOKEN_SKEW_SECONDS"),
			Destination: &x.tokenSkewS,
		},
		&cli.BoolFlag{
			Name:        "kvca-retry-on-401",
			Category:    "Source API",
			Usage:       "Re-login and retry once on 401 responses",
			Value:       true,
			Sources:     cli.EnvVars("ENROLSYNC_KVCA_RETRY_ON_401", "KVCA_RETRY_ON_401"),
			Destination: &x.retryOn401,
		},
	}
}

// Configure builds the source API client.
func (x *Source) Configure() (*kvca.Client, error) {
	baseURL, err := normalizeBaseURL(x.baseURL)
	if err != nil {
		return nil, err
	}

	client := kvca.New(baseURL, x.userID, x.password,
		kvca.WithTimeout(time.Duration(x.timeoutMS)*time.Millisecond),
		kvca.WithTokenSkew(time.Duration(x.tokenSkewS)*time.Second),
		kvca.WithRetryOn401(x.retryOn401),
	)
	return client, nil
}

// normalizeBaseURL accepts a bare host or a full URL and returns
// scheme://host, defaulting the scheme to https.
func normalizeBaseURL(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return defaultSourceBaseURL, nil
	}
	if !strings.Contains(text, "://") {
		text = "https://" + text
	}
	parsed, err := url.Parse(text)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", goerr.Wrap(ErrMissingSourceURL, "invalid base URL", goerr.V("url", raw))
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}

// LogValue renders the source configuration without the password
func (x Source) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("base_url", x.baseURL),
		slog.String("user_id", x.userID),
		slog.Int("timeout_ms", x.timeoutMS),
		slog.Int("token_skew_seconds", x.tokenSkewS),
		slog.Bool("retry_on_401", x.retryOn401),
	)
}
