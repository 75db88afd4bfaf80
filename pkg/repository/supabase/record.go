package supabase

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/kvca-ops/enrolsync/pkg/domain/model"
	"github.com/kvca-ops/enrolsync/pkg/domain/types"
)

type recordRow struct {
	SourceType  string         `json:"source_type"`
	SourceID    string         `json:"source_id"`
	CategoryID  *int           `json:"category_id"`
	CourseID    *int           `json:"course_id"`
	TermID      *int           `json:"term_id"`
	UserID      *string        `json:"user_id"`
	UserName    *string        `json:"user_name"`
	CompanyName *string        `json:"company_name"`
	DeptName    *string        `json:"dept_name"`
	JobPosition *string        `json:"job_position"`
	Status      *string        `json:"status"`
	StatusMsg   *string        `json:"status_msg"`
	CodeName    *string        `json:"code_name"`
	DSDate      *time.Time     `json:"ds_date"`
	GCDate      *time.Time     `json:"gc_date"`
	SJCDate     *time.Time     `json:"sjc_date"`
	UpdateTime  *time.Time     `json:"update_time"`
	Payload     map[string]any `json:"payload"`
	PayloadHash string         `json:"payload_hash"`
	LastSeenAt  time.Time      `json:"last_seen_at"`
}

type snapshotRow struct {
	SourceType   string         `json:"source_type"`
	SourceID     string         `json:"source_id"`
	SnapshotHash string         `json:"snapshot_hash"`
	Payload      map[string]any `json:"payload"`
}

type hashRow struct {
	SourceType  string `json:"source_type"`
	SourceID    string `json:"source_id"`
	PayloadHash string `json:"payload_hash"`
}

type recordRepository struct {
	client *client
}

func recordToRow(r *model.SourceRecord, now time.Time) recordRow {
	lastSeen := r.LastSeenAt
	if lastSeen.IsZero() {
		lastSeen = now
	}
	return recordRow{
		SourceType:  string(r.SourceType),
		SourceID:    r.SourceID,
		CategoryID:  optInt(r.CategoryID),
		CourseID:    optInt(r.CourseID),
		TermID:      optInt(r.TermID),
		UserID:      optString(r.UserID),
		UserName:    optString(r.UserName),
		CompanyName: optString(r.CompanyName),
		DeptName:    optString(r.DeptName),
		JobPosition: optString(r.JobPosition),
		Status:      optString(r.Status),
		StatusMsg:   optString(r.StatusMsg),
		CodeName:    optString(r.CodeName),
		DSDate:      r.DSDate,
		GCDate:      r.GCDate,
		SJCDate:     r.SJCDate,
		UpdateTime:  r.UpdateTime,
		Payload:     r.Payload,
		PayloadHash: r.PayloadHash,
		LastSeenAt:  lastSeen,
	}
}

func rowToRecord(row *recordRow) *model.SourceRecord {
	return &model.SourceRecord{
		SourceType:  types.SourceType(row.SourceType),
		SourceID:    row.SourceID,
		CategoryID:  derefInt(row.CategoryID),
		CourseID:    derefInt(row.CourseID),
		TermID:      derefInt(row.TermID),
		UserID:      derefString(row.UserID),
		UserName:    derefString(row.UserName),
		CompanyName: derefString(row.CompanyName),
		DeptName:    derefString(row.DeptName),
		JobPosition: derefString(row.JobPosition),
		Status:      derefString(row.Status),
		StatusMsg:   derefString(row.StatusMsg),
		CodeName:    derefString(row.CodeName),
		DSDate:      row.DSDate,
		GCDate:      row.GCDate,
		SJCDate:     row.SJCDate,
		UpdateTime:  row.UpdateTime,
		Payload:     row.Payload,
		PayloadHash: row.PayloadHash,
		LastSeenAt:  row.LastSeenAt,
	}
}

func (r *recordRepository) GetHashes(ctx context.Context, keys []model.RecordKey) (map[model.RecordKey]string, error) {
	hashes := make(map[model.RecordKey]string, len(keys))

	// One in.() query per source type present in the batch
	byType := make(map[types.SourceType][]string)
	for _, key := range keys {
		byType[key.SourceType] = append(byType[key.SourceType], key.SourceID)
	}

	for sourceType, ids := range byType {
		for _, chunk := range chunkStrings(ids, upsertChunkSize) {
			query := url.Values{}
			query.Set("select", "source_type,source_id,payload_hash")
			query.Set("source_type", "eq."+string(sourceType))
			query.Set("source_id", quoteList(chunk))

			data, err := r.client.call(ctx, http.MethodGet, "source_record", query, "", nil)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to fetch stored hashes",
					goerr.V("source_type", sourceType))
			}
			rows, err := decodeRows[hashRow](data)
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				key := model.RecordKey{SourceType: types.SourceType(row.SourceType), SourceID: row.SourceID}
				hashes[key] = row.PayloadHash
			}
		}
	}
	return hashes, nil
}

func (r *recordRepository) UpsertAll(ctx context.Context, records []*model.SourceRecord) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]recordRow, len(records))
	for i, rec := range records {
		rows[i] = recordToRow(rec, now)
	}

	for _, chunk := range chunkRows(rows, upsertChunkSize) {
		query := url.Values{}
		query.Set("on_conflict", "source_type,source_id")
		if _, err := r.client.call(ctx, http.MethodPost, "source_record", query, preferUpsert, chunk); err != nil {
			return goerr.Wrap(err, "failed to upsert source records", goerr.V("count", len(chunk)))
		}
	}
	return nil
}

func (r *recordRepository) AppendSnapshots(ctx context.Context, snapshots []*model.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	rows := make([]snapshotRow, len(snapshots))
	for i, snap := range snapshots {
		rows[i] = snapshotRow{
			SourceType:   string(snap.SourceType),
			SourceID:     snap.SourceID,
			SnapshotHash: snap.SnapshotHash,
			Payload:      snap.Payload,
		}
	}

	for _, chunk := range chunkRows(rows, upsertChunkSize) {
		if _, err := r.client.call(ctx, http.MethodPost, "snapshot", nil, preferMinimal, chunk); err != nil {
			return goerr.Wrap(err, "failed to append snapshots", goerr.V("count", len(chunk)))
		}
	}
	return nil
}

func (r *recordRepository) Get(ctx context.Context, key model.RecordKey) (*model.SourceRecord, error) {
	query := url.Values{}
	query.Set("source_type", "eq."+string(key.SourceType))
	query.Set("source_id", "eq."+key.SourceID)
	query.Set("limit", "1")

	data, err := r.client.call(ctx, http.MethodGet, "source_record", query, "", nil)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[recordRow](data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, goerr.Wrap(ErrNotFound, "source record not found",
			goerr.V("source_type", key.SourceType), goerr.V("source_id", key.SourceID))
	}
	return rowToRecord(&rows[0]), nil
}

func optInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}

func optString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func chunkStrings(items []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

func chunkRows[T any](items []T, size int) [][]T {
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
