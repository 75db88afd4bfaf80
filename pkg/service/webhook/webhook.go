// Package webhook delivers sheet outbox rows to a generic JSON webhook, e.g.
// a Google Apps Script endpoint appending rows to a spreadsheet.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/kvca-ops/enrolsync/pkg/utils/logging"
	"github.com/kvca-ops/enrolsync/pkg/utils/safe"
)

// Sink accepts one outbox payload per call. Delivery must be treated as
// at-least-once by callers.
type Sink interface {
	Post(ctx context.Context, payload map[string]any) error
}

type client struct {
	url        string
	httpClient *http.Client
}

var _ Sink = (*client)(nil)

type Option func(*client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(x *client) {
		x.httpClient = httpClient
	}
}

// New creates a sheet webhook sink. An empty URL yields a sink that drops
// payloads with a warning, so that dev setups without a sheet endpoint can
// still drain the outbox.
func New(url string, opts ...Option) Sink {
	x := &client{
		url:        url,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *client) Post(ctx context.Context, payload map[string]any) error {
	if x.url == "" {
		logging.From(ctx).Warn("sheet webhook URL is not configured, dropping payload")
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return goerr.Wrap(err, "failed to encode webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.url, bytes.NewReader(raw))
	if err != nil {
		return goerr.Wrap(err, "failed to build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "failed to call sheet webhook")
	}
	defer safe.Close(ctx, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return goerr.New("sheet webhook returned non-2xx",
			goerr.V("status_code", resp.StatusCode),
			goerr.V("body", string(body)),
		)
	}

	return nil
}
