package model

import (
	"time"

	"github.com/kvca-ops/enrolsync/pkg/domain/types"
)

// RecordKey is the composite identity of a source record
type RecordKey struct {
	SourceType types.SourceType
	SourceID   string
}

// SourceRecord is the canonical latest state of one entity observed from the
// KVCA API. Records are upserted by key every run; history is kept in
// Snapshot rows, not by versioning this struct.
type SourceRecord struct {
	SourceType  types.SourceType
	SourceID    string
	CategoryID  int
	CourseID    int
	TermID      int
	UserID      string
	UserName    string
	CompanyName string
	DeptName    string
	JobPosition string
	Status      string
	StatusMsg   string
	CodeName    string
	DSDate      *time.Time
	GCDate      *time.Time
	SJCDate     *time.Time
	UpdateTime  *time.Time
	Payload     map[string]any
	PayloadHash string
	LastSeenAt  time.Time
}

// Key returns the composite key of the record
func (r *SourceRecord) Key() RecordKey {
	return RecordKey{SourceType: r.SourceType, SourceID: r.SourceID}
}

// IsPaid reports whether the payment timestamp was observed. The source
// sends the literal string "empty" for unset dates, which the record builder
// maps to nil, so presence alone is the signal.
func (r *SourceRecord) IsPaid() bool {
	return r.GCDate != nil
}

// IsDocReady reports whether the document-ready timestamp was observed
func (r *SourceRecord) IsDocReady() bool {
	return r.SJCDate != nil
}

// Snapshot is one immutable observed version of a source record
type Snapshot struct {
	SourceType   types.SourceType
	SourceID     string
	SnapshotHash string
	Payload      map[string]any
	CreatedAt    time.Time
}

// ToSnapshot builds the append-only history row for this record version
func (r *SourceRecord) ToSnapshot() *Snapshot {
	return &Snapshot{
		SourceType:   r.SourceType,
		SourceID:     r.SourceID,
		SnapshotHash: r.PayloadHash,
		Payload:      r.Payload,
	}
}
