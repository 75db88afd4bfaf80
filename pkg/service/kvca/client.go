// Package kvca talks to the KVCA learning management API: admin login with a
// cached bearer token and the read endpoints the enrolment sync walks.
package kvca

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/kvca-ops/enrolsync/pkg/utils/safe"
)

// Service is the read surface of the source API.
type Service interface {
	Categories(ctx context.Context) ([]Object, error)
	CoursesByCategory(ctx context.Context, categoryID int) ([]Object, error)
	ClassStatusAll(ctx context.Context, courseID int) ([]Object, error)
	EnrolmentUserInfo(ctx context.Context, termID int, userID string) (Object, error)
}

const (
	defaultTimeout   = 30 * time.Second
	defaultTokenSkew = 60 * time.Second
)

type Client struct {
	baseURL    string
	userID     string
	password   string
	httpClient *http.Client
	retryOn401 bool
	auth       *tokenManager
}

var _ Service = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(x *Client) {
		x.httpClient = httpClient
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(x *Client) {
		x.httpClient.Timeout = timeout
	}
}

func WithTokenSkew(skew time.Duration) Option {
	return func(x *Client) {
		x.auth.skew = skew
	}
}

func WithRetryOn401(enabled bool) Option {
	return func(x *Client) {
		x.retryOn401 = enabled
	}
}

func WithNow(now func() time.Time) Option {
	return func(x *Client) {
		x.auth.now = now
	}
}

func New(baseURL, userID, password string, options ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userID:     userID,
		password:   password,
		httpClient: &http.Client{Timeout: defaultTimeout},
		retryOn401: true,
	}
	client.auth = &tokenManager{
		login: client.login,
		skew:  defaultTokenSkew,
		now:   time.Now,
	}

	for _, opt := range options {
		opt(client)
	}

	return client
}

func (x *Client) Categories(ctx context.Context) ([]Object, error) {
	data, err := x.requestJSON(ctx, "/api/category/list", map[string]any{
		"categoryid": "all",
	})
	if err != nil {
		return nil, err
	}
	return objectList(data), nil
}

// CoursesByCategory tolerates both response shapes the upstream is known to
// emit: a plain array, or an object keyed by course ID.
func (x *Client) CoursesByCategory(ctx context.Context, categoryID int) ([]Object, error) {
	data, err := x.requestJSON(ctx, "/api/course/category/course", map[string]any{
		"categoryid": categoryID,
	})
	if err != nil {
		return nil, err
	}

	if obj, ok := data.(map[string]any); ok {
		var courses []Object
		for _, v := range obj {
			if m, ok := v.(map[string]any); ok {
				courses = append(courses, Object(m))
			}
		}
		return courses, nil
	}
	return objectList(data), nil
}

func (x *Client) ClassStatusAll(ctx context.Context, courseID int) ([]Object, error) {
	data, err := x.requestJSON(ctx, "/api/course/classStatusAll", map[string]any{
		"courseid": courseID,
	})
	if err != nil {
		return nil, err
	}
	return objectList(data), nil
}

func (x *Client) EnrolmentUserInfo(ctx context.Context, termID int, userID string) (Object, error) {
	data, err := x.requestJSON(ctx, "/api/enrolment/getEnrolmentUserInfo", map[string]any{
		"termId": termID,
		"userId": userID,
	})
	if err != nil {
		return nil, err
	}

	if obj, ok := data.(map[string]any); ok {
		return Object(obj), nil
	}
	return Object{}, nil
}

// requestJSON performs an authenticated POST and decodes the response. A 401
// response triggers one forced re-login followed by a single retry.
func (x *Client) requestJSON(ctx context.Context, path string, payload map[string]any) (any, error) {
	header, err := x.auth.AuthHeader(ctx)
	if err != nil {
		return nil, err
	}

	status, body, err := x.post(ctx, path, payload, header)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && x.retryOn401 {
		if err := x.auth.ForceRelogin(ctx); err != nil {
			return nil, err
		}
		header, err = x.auth.AuthHeader(ctx)
		if err != nil {
			return nil, err
		}
		status, body, err = x.post(ctx, path, payload, header)
		if err != nil {
			return nil, err
		}
	}

	if status < 200 || status >= 300 {
		return nil, goerr.Wrap(ErrUpstream, "unexpected response from source API",
			goerr.V("path", path),
			goerr.V("status_code", status),
		)
	}

	return decodeJSON(body)
}

func (x *Client) login(ctx context.Context) (*TokenBundle, error) {
	status, body, err := x.post(ctx, "/api/auth/login", map[string]any{
		"userId":       x.userID,
		"userPassword": x.password,
		"submit":       nil,
	}, "")
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, goerr.Wrap(ErrAuthFailed, "login rejected",
			goerr.V("status_code", status),
		)
	}

	var resp struct {
		GrantType            string      `json:"grantType"`
		AccessToken          string      `json:"accessToken"`
		RefreshToken         string      `json:"refreshToken"`
		AccessTokenExpiresIn json.Number `json:"accessTokenExpiresIn"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, goerr.Wrap(ErrAuthFailed, "failed to decode login response", goerr.V("cause", err.Error()))
	}
	if resp.AccessToken == "" {
		return nil, goerr.Wrap(ErrAuthFailed, "login response has no access token")
	}
	expiresAt, err := resp.AccessTokenExpiresIn.Int64()
	if err != nil {
		return nil, goerr.Wrap(ErrAuthFailed, "login response has invalid token expiry", goerr.V("cause", err.Error()))
	}

	grantType := resp.GrantType
	if grantType == "" {
		grantType = "Bearer"
	}

	return &TokenBundle{
		GrantType:    grantType,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAtMS:  expiresAt,
	}, nil
}

// post returns the raw status and body. Only transport-level failures are
// returned as errors so callers can branch on the status code.
func (x *Client) post(ctx context.Context, path string, payload map[string]any, authHeader string) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, goerr.Wrap(err, "failed to encode request body", goerr.V("path", path))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, goerr.Wrap(err, "failed to build request", goerr.V("path", path))
	}
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return 0, nil, goerr.Wrap(err, "failed to call source API", goerr.V("path", path))
	}
	defer safe.Close(ctx, resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, goerr.Wrap(err, "failed to read response body", goerr.V("path", path))
	}

	return resp.StatusCode, body, nil
}

func decodeJSON(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, goerr.Wrap(err, "failed to decode response body")
	}
	return data, nil
}

func objectList(data any) []Object {
	items, ok := data.([]any)
	if !ok {
		return nil
	}
	var objects []Object
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			objects = append(objects, Object(m))
		}
	}
	return objects
}
