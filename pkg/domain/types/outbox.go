package types

// OutboxStatus represents the delivery state of an outbox row
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
)

// IsValid checks if the outbox status is valid
func (s OutboxStatus) IsValid() bool {
	switch s {
	case OutboxStatusPending,
		OutboxStatusProcessing,
		OutboxStatusSent,
		OutboxStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the row has left the retry loop. SENT rows are
// done; FAILED rows stay eligible for retry, so FAILED is not terminal here.
func (s OutboxStatus) IsTerminal() bool {
	return s == OutboxStatusSent
}

func (s OutboxStatus) String() string {
	return string(s)
}
