package types

// RunStatus represents the lifecycle state of a sync run
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailed  RunStatus = "FAILED"
)

// IsValid checks if the run status is valid
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusSuccess, RunStatusFailed:
		return true
	default:
		return false
	}
}

func (s RunStatus) String() string {
	return string(s)
}

// TriggerType records what initiated a sync run
type TriggerType string

const (
	TriggerTypeManual    TriggerType = "MANUAL"
	TriggerTypeScheduled TriggerType = "SCHEDULED"
)

// Normalize returns the trigger type, treating empty as MANUAL
func (t TriggerType) Normalize() TriggerType {
	if t == "" {
		return TriggerTypeManual
	}
	return t
}

func (t TriggerType) String() string {
	return string(t)
}
