package mysql

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/sentinelhq/sentinel-upload/internal/domain/uploads"
)

type UploadRepository struct {
	db *sql.DB
}

func NewUploadRepository(db *sql.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Save appends one admission decision. Records are never updated in place.
func (r *UploadRepository) Save(ctx context.Context, rec *domain.UploadRecord) error {
	const q = `
INSERT INTO upload_records
(id, origin, filename, content_type, size_bytes, status,
 scan_status, scan_engine, scan_detail, artifact_url, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?);
`
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := r.db.ExecContext(ctx, q,
		rec.ID, stringOrDash(rec.Origin), rec.Filename, rec.ContentType, rec.SizeBytes,
		stringOrDash(string(rec.Status)),
		stringOrDash(string(rec.ScanStatus)), rec.ScanEngine, rec.ScanDetail,
		rec.ArtifactURL, created,
	)
	return err
}

// Latest admission decisions, newest first
func (r *UploadRepository) Latest(ctx context.Context, limit int) ([]*domain.UploadRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, origin, filename, content_type, size_bytes, status,
       scan_status, scan_engine, scan_detail, artifact_url, created_at
FROM upload_records
ORDER BY created_at DESC, id DESC LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.UploadRecord
	for rows.Next() {
		var rec domain.UploadRecord
		if err := rows.Scan(
			&rec.ID, &rec.Origin, &rec.Filename, &rec.ContentType, &rec.SizeBytes, &rec.Status,
			&rec.ScanStatus, &rec.ScanEngine, &rec.ScanDetail, &rec.ArtifactURL, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
