package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	domain "github.com/bryanwahyu/vulnscan/internal/domain/scans"
)

type ScanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Save insert/update Scan record
func (r *ScanRepository) Save(ctx context.Context, s *domain.Scan) error {
	const q = `
INSERT INTO code_scans
(id, scan_type, code, repo_url, branch, status,
 has_vulnerabilities, confidence_score, ai_raw_response, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 status=VALUES(status),
 has_vulnerabilities=VALUES(has_vulnerabilities),
 confidence_score=VALUES(confidence_score),
 ai_raw_response=VALUES(ai_raw_response);
`
	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.Type, s.Code, s.RepoURL, s.Branch, s.Status,
		nullBool(s.HasVulnerabilities), nullFloat(s.ConfidenceScore),
		s.AIRawResponse, created,
	)
	return err
}

// Get by ID; absent record yields (nil, nil)
func (r *ScanRepository) Get(ctx context.Context, id domain.ScanID) (*domain.Scan, error) {
	const q = `
SELECT id, scan_type, code, repo_url, branch, status,
       has_vulnerabilities, confidence_score, ai_raw_response, created_at
FROM code_scans
WHERE id=? LIMIT 1;
`
	s, err := scanRow(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// List scans with offset pagination, newest first
func (r *ScanRepository) List(ctx context.Context, page, pageSize int) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, scan_type, code, repo_url, branch, status,
       has_vulnerabilities, confidence_score, ai_raw_response, created_at
FROM code_scans
ORDER BY created_at DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, pageSize, offset)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("querying scans: %w", err)
	}
	defer rows.Close()

	var scans []*domain.Scan
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return domain.PaginatedResult{}, fmt.Errorf("scanning row: %w", err)
		}
		scans = append(scans, s)
	}
	if err = rows.Err(); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("iterating rows: %w", err)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM code_scans;`).Scan(&total); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("getting total count: %w", err)
	}

	return domain.PaginatedResult{
		Data:       scans,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

// ListPending returns scans left in non-terminal states, oldest first
func (r *ScanRepository) ListPending(ctx context.Context) ([]*domain.Scan, error) {
	const q = `
SELECT id, scan_type, code, repo_url, branch, status,
       has_vulnerabilities, confidence_score, ai_raw_response, created_at
FROM code_scans
WHERE status IN (?, ?)
ORDER BY created_at ASC;
`
	rows, err := r.db.QueryContext(ctx, q, domain.StatusPending, domain.StatusRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Scan
	for rows.Next() {
		s, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(row rowScanner) (*domain.Scan, error) {
	var s domain.Scan
	var hasVuln sql.NullBool
	var confidence sql.NullFloat64
	if err := row.Scan(
		&s.ID, &s.Type, &s.Code, &s.RepoURL, &s.Branch, &s.Status,
		&hasVuln, &confidence, &s.AIRawResponse, &s.CreatedAt,
	); err != nil {
		return nil, err
	}
	if hasVuln.Valid {
		s.HasVulnerabilities = &hasVuln.Bool
	}
	if confidence.Valid {
		s.ConfidenceScore = &confidence.Float64
	}
	return &s, nil
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
