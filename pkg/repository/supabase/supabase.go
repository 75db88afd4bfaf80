// Package supabase implements the repository over the Supabase PostgREST
// interface. Conditional updates (lease takeover, outbox claim) are
// expressed as filtered PATCH/DELETE calls whose affected-row count is read
// from the returned representation; no call spans a transaction.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/kvca-ops/enrolsync/pkg/domain/interfaces"
	"github.com/kvca-ops/enrolsync/pkg/utils/safe"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = goerr.New("not found")

const (
	preferRepresentation = "return=representation"
	preferMinimal        = "return=minimal"
	preferUpsert         = "resolution=merge-duplicates,return=minimal"
	preferIgnoreDup      = "resolution=ignore-duplicates,return=representation"

	upsertChunkSize = 500
)

// Supabase is the PostgREST-backed repository
type Supabase struct {
	client       *client
	record       *recordRepository
	run          *runRepository
	lock         *lockRepository
	alert        *alertRepository
	sheet        *outboxRepository
	notification *outboxRepository
}

var _ interfaces.Repository = &Supabase{}

// New creates a Supabase repository. projectURL is the project base URL
// (https://xyz.supabase.co); the /rest/v1 prefix is appended here.
func New(projectURL, serviceKey string, timeout time.Duration) (*Supabase, error) {
	if projectURL == "" {
		return nil, goerr.New("supabase project URL is required")
	}
	if serviceKey == "" {
		return nil, goerr.New("supabase service role key is required")
	}

	c := &client{
		baseURL: strings.TrimRight(projectURL, "/") + "/rest/v1",
		apiKey:  serviceKey,
		http:    &http.Client{Timeout: timeout},
	}

	return &Supabase{
		client:       c,
		record:       &recordRepository{client: c},
		run:          &runRepository{client: c},
		lock:         &lockRepository{client: c},
		alert:        &alertRepository{client: c},
		sheet:        &outboxRepository{client: c, table: "sheet_outbox"},
		notification: &outboxRepository{client: c, table: "notification_outbox"},
	}, nil
}

func (s *Supabase) Record() interfaces.RecordRepository { return s.record }

func (s *Supabase) Run() interfaces.RunRepository { return s.run }

func (s *Supabase) Lock() interfaces.LockRepository { return s.lock }

func (s *Supabase) Alert() interfaces.AlertRepository { return s.alert }

func (s *Supabase) SheetOutbox() interfaces.OutboxRepository { return s.sheet }

func (s *Supabase) NotificationOutbox() interfaces.OutboxRepository { return s.notification }

func (s *Supabase) Close() error {
	s.client.http.CloseIdleConnections()
	return nil
}

// client wraps one PostgREST endpoint with auth headers
type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// do issues one request and returns the response status and body. Transport
// failures are errors; HTTP status handling is left to the caller because
// some paths treat 409 as a signal, not a failure.
func (c *client) do(ctx context.Context, method, table string, query url.Values, prefer string, body any) (int, []byte, error) {
	endpoint := c.baseURL + "/" + url.PathEscape(table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, goerr.Wrap(err, "failed to encode request body", goerr.V("table", table))
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, goerr.Wrap(err, "failed to build request", goerr.V("table", table))
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, goerr.Wrap(err, "supabase request failed",
			goerr.V("table", table), goerr.V("method", method))
	}
	defer safe.Close(ctx, resp.Body)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, goerr.Wrap(err, "failed to read supabase response", goerr.V("table", table))
	}
	return resp.StatusCode, data, nil
}

// call is do with non-2xx statuses turned into errors
func (c *client) call(ctx context.Context, method, table string, query url.Values, prefer string, body any) ([]byte, error) {
	status, data, err := c.do(ctx, method, table, query, prefer, body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, goerr.New("supabase returned error status",
			goerr.V("table", table),
			goerr.V("method", method),
			goerr.V("status_code", status),
			goerr.V("body", truncateBody(data)))
	}
	return data, nil
}

// affected runs a conditional write and reports how many rows it touched,
// using the returned representation as the row count.
func (c *client) affected(ctx context.Context, method, table string, query url.Values, body any) (int, error) {
	data, err := c.call(ctx, method, table, query, preferRepresentation, body)
	if err != nil {
		return 0, err
	}
	var rows []json.RawMessage
	if len(data) == 0 {
		return 0, nil
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, goerr.Wrap(err, "failed to decode affected rows", goerr.V("table", table))
	}
	return len(rows), nil
}

func decodeRows[T any](data []byte) ([]T, error) {
	var rows []T
	if len(data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, goerr.Wrap(err, "failed to decode supabase rows")
	}
	return rows, nil
}

func truncateBody(data []byte) string {
	const limit = 300
	if len(data) > limit {
		return string(data[:limit])
	}
	return string(data)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// quoteList builds a PostgREST in.(...) operand. Values are double-quoted
// because record ids contain ':'.
func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return "in.(" + strings.Join(quoted, ",") + ")"
}
