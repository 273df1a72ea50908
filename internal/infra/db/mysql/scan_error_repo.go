package mysql

import (
	"context"
	"database/sql"
	"time"

	"github.com/bryanwahyu/vulnscan/internal/domain/scanerrors"
)

type ScanErrorRepository struct {
	db *sql.DB
}

func NewScanErrorRepository(db *sql.DB) *ScanErrorRepository {
	return &ScanErrorRepository{db: db}
}

// Save insert scan error entry
func (r *ScanErrorRepository) Save(ctx context.Context, e *scanerrors.ScanError) error {
	const q = `
INSERT INTO scan_errors (scan_id, phase, message, created_at)
VALUES (?,?,?,?);
`
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, e.ScanID, e.Phase, e.Message, created)
	return err
}

// ListByScan returns failure entries for one scan, newest first
func (r *ScanErrorRepository) ListByScan(ctx context.Context, scanID string, limit int) ([]*scanerrors.ScanError, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, scan_id, phase, message, created_at
FROM scan_errors
WHERE scan_id=? ORDER BY created_at DESC LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, scanID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*scanerrors.ScanError
	for rows.Next() {
		var e scanerrors.ScanError
		if err := rows.Scan(&e.ID, &e.ScanID, &e.Phase, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
