package usecase

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/kvca-ops/enrolsync/pkg/domain/types"
	"github.com/kvca-ops/enrolsync/pkg/service/kvca"
)

var statusCodePattern = regexp.MustCompile(`status[_ ]?(?:code)?[^0-9]{0,3}([45]\d\d)`)

// classifyFailure maps a run error to its error group. Order matters: lock
// conflicts and timeouts have distinctive shapes and are checked before the
// generic HTTP buckets.
func classifyFailure(err error) types.ErrorGroup {
	if err == nil {
		return types.ErrorGroupUnknown
	}

	if errors.Is(err, ErrLockConflict) {
		return types.ErrorGroupLockConflict
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "job_lock") || strings.Contains(msg, "already running") {
		return types.ErrorGroupLockConflict
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") {
		return types.ErrorGroupTimeout
	}

	if code := kvca.StatusCode(err); code != 0 {
		return statusGroup(code)
	}
	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		if code, err := strconv.Atoi(m[1]); err == nil {
			return statusGroup(code)
		}
	}

	return types.ErrorGroupUnknown
}

func statusGroup(code int) types.ErrorGroup {
	switch {
	case code >= 500:
		return types.ErrorGroupHTTP5xx
	case code >= 400:
		return types.ErrorGroupHTTP4xx
	default:
		return types.ErrorGroupUnknown
	}
}
