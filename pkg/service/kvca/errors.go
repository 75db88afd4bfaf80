package kvca

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrAuthFailed means the login endpoint rejected the configured
	// credentials or returned an unusable token bundle.
	ErrAuthFailed = goerr.New("kvca authentication failed")

	// ErrUpstream means the source API returned a non-2xx response.
	ErrUpstream = goerr.New("kvca upstream request failed")
)

// StatusCode extracts the upstream HTTP status attached to an error, or 0 if
// the error carries none (e.g. transport failures).
func StatusCode(err error) int {
	var ge *goerr.Error
	if errors.As(err, &ge) {
		if code, ok := ge.Values()["status_code"].(int); ok {
			return code
		}
	}
	return 0
}
