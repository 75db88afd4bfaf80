package types

import "fmt"

// SourceType identifies which KVCA endpoint a record was observed from
type SourceType string

const (
	SourceTypeEnrolmentStatus     SourceType = "enrolment_status"
	SourceTypeEnrolmentUserDetail SourceType = "enrolment_user_detail"

	// SourceTypeJob marks alerts synthesized from run failures rather than
	// observed records. Its SourceID is "{jobName}:{errorGroup}".
	SourceTypeJob SourceType = "job"
)

// AllSourceTypes returns the record-bearing source types
func AllSourceTypes() []SourceType {
	return []SourceType{
		SourceTypeEnrolmentStatus,
		SourceTypeEnrolmentUserDetail,
	}
}

// IsValid checks if the source type is valid
func (s SourceType) IsValid() bool {
	switch s {
	case SourceTypeEnrolmentStatus,
		SourceTypeEnrolmentUserDetail,
		SourceTypeJob:
		return true
	default:
		return false
	}
}

// String returns the string representation of the source type
func (s SourceType) String() string {
	return string(s)
}

// ParseSourceType parses a string into a SourceType
func ParseSourceType(s string) (SourceType, error) {
	st := SourceType(s)
	if !st.IsValid() {
		return "", fmt.Errorf("invalid source type: %s", s)
	}
	return st, nil
}
