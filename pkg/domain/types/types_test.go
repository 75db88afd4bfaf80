package types_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/kvca-ops/enrolsync/pkg/domain/types"
)

func TestSourceType_IsValid(t *testing.T) {
	tests := []struct {
		name       string
		sourceType types.SourceType
		want       bool
	}{
		{
			name:       "valid enrolment status",
			sourceType: types.SourceTypeEnrolmentStatus,
			want:       true,
		},
		{
			name:       "valid user detail",
			sourceType: types.SourceTypeEnrolmentUserDetail,
			want:       true,
		},
		{
			name:       "valid job",
			sourceType: types.SourceTypeJob,
			want:       true,
		},
		{
			name:       "invalid type",
			sourceType: types.SourceType("invalid"),
			want:       false,
		},
		{
			name:       "empty type",
			sourceType: types.SourceType(""),
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.want {
				gt.B(t, tt.sourceType.IsValid()).True()
			} else {
				gt.B(t, tt.sourceType.IsValid()).False()
			}
		})
	}
}

func TestAllSourceTypes(t *testing.T) {
	all := types.AllSourceTypes()
	gt.Array(t, all).Length(2)
	for _, sourceType := range all {
		gt.B(t, sourceType == types.SourceTypeJob).False()
	}
}

func TestTriggerType_Normalize(t *testing.T) {
	gt.Value(t, types.TriggerType("").Normalize()).Equal(types.TriggerTypeManual)
	gt.Value(t, types.TriggerTypeScheduled.Normalize()).Equal(types.TriggerTypeScheduled)
}

func TestOutboxStatus_IsTerminal(t *testing.T) {
	gt.B(t, types.OutboxStatusSent.IsTerminal()).True()
	gt.B(t, types.OutboxStatusPending.IsTerminal()).False()
	gt.B(t, types.OutboxStatusProcessing.IsTerminal()).False()
	gt.B(t, types.OutboxStatusFailed.IsTerminal()).False()
}

func TestErrorGroup_Severity(t *testing.T) {
	tests := []struct {
		group types.ErrorGroup
		want  types.Severity
	}{
		{types.ErrorGroupHTTP5xx, types.SeverityHigh},
		{types.ErrorGroupTimeout, types.SeverityHigh},
		{types.ErrorGroupLockConflict, types.SeverityLow},
		{types.ErrorGroupHTTP4xx, types.SeverityMedium},
		{types.ErrorGroupUnknown, types.SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.group.String(), func(t *testing.T) {
			gt.Value(t, tt.group.Severity()).Equal(tt.want)
		})
	}
}
