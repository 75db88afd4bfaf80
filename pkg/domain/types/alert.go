package types

// AlertType classifies what kind of change produced an alert
type AlertType string

const (
	AlertTypeNew     AlertType = "NEW"
	AlertTypeChanged AlertType = "CHANGED"
	AlertTypeFailed  AlertType = "FAILED"
)

// IsValid checks if the alert type is valid
func (t AlertType) IsValid() bool {
	switch t {
	case AlertTypeNew, AlertTypeChanged, AlertTypeFailed:
		return true
	default:
		return false
	}
}

func (t AlertType) String() string {
	return string(t)
}

// Severity represents the business severity of an alert
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// IsValid checks if the severity is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	default:
		return false
	}
}

func (s Severity) String() string {
	return string(s)
}

// ErrorGroup is the coarse taxonomy a run failure is classified into
type ErrorGroup string

const (
	ErrorGroupLockConflict ErrorGroup = "LOCK_CONFLICT"
	ErrorGroupHTTP4xx      ErrorGroup = "HTTP_4XX"
	ErrorGroupHTTP5xx      ErrorGroup = "HTTP_5XX"
	ErrorGroupTimeout      ErrorGroup = "TIMEOUT"
	ErrorGroupUnknown      ErrorGroup = "UNKNOWN"
)

func (g ErrorGroup) String() string {
	return string(g)
}

// Severity maps an error group to the severity of its synthesized alert.
// 5xx and timeouts indicate the upstream is unhealthy, lock conflicts are
// expected contention.
func (g ErrorGroup) Severity() Severity {
	switch g {
	case ErrorGroupHTTP5xx, ErrorGroupTimeout:
		return SeverityHigh
	case ErrorGroupLockConflict:
		return SeverityLow
	default:
		return SeverityMedium
	}
}
