package kvca

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenBundle holds the credentials issued by the login endpoint. ExpiresAtMS
// is an absolute epoch timestamp in milliseconds, not a duration, despite the
// upstream field name accessTokenExpiresIn.
type TokenBundle struct {
	GrantType    string
	AccessToken  string
	RefreshToken string
	ExpiresAtMS  int64
}

// ExpiringSoon reports whether the token is expired or will expire within the
// skew window.
func (x *TokenBundle) ExpiringSoon(now time.Time, skew time.Duration) bool {
	return now.Add(skew).UnixMilli() >= x.ExpiresAtMS
}

// tokenManager caches the token bundle and collapses concurrent logins into a
// single upstream call.
type tokenManager struct {
	login func(ctx context.Context) (*TokenBundle, error)
	skew  time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	token *TokenBundle
	group singleflight.Group
}

// AuthHeader returns the Authorization header value, logging in first if no
// usable token is cached.
func (x *tokenManager) AuthHeader(ctx context.Context) (string, error) {
	x.mu.RLock()
	token := x.token
	x.mu.RUnlock()

	if token == nil || token.ExpiringSoon(x.now(), x.skew) {
		refreshed, err := x.refresh(ctx, false)
		if err != nil {
			return "", err
		}
		token = refreshed
	}

	return token.GrantType + " " + token.AccessToken, nil
}

// ForceRelogin discards the cached token and performs a fresh login.
func (x *tokenManager) ForceRelogin(ctx context.Context) error {
	_, err := x.refresh(ctx, true)
	return err
}

func (x *tokenManager) refresh(ctx context.Context, force bool) (*TokenBundle, error) {
	v, err, _ := x.group.Do("login", func() (any, error) {
		x.mu.RLock()
		current := x.token
		x.mu.RUnlock()

		// Another caller may have refreshed while we waited for the flight.
		if !force && current != nil && !current.ExpiringSoon(x.now(), x.skew) {
			return current, nil
		}

		token, err := x.login(ctx)
		if err != nil {
			return nil, err
		}

		x.mu.Lock()
		x.token = token
		x.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TokenBundle), nil
}
