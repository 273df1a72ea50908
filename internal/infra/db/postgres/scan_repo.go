package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/lib/pq"

	domain "github.com/bryanwahyu/vulnscan/internal/domain/scans"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		return nil, err
	}
	return db, nil
}

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
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
 status=EXCLUDED.status,
 has_vulnerabilities=EXCLUDED.has_vulnerabilities,
 confidence_score=EXCLUDED.confidence_score,
 ai_raw_response=EXCLUDED.ai_raw_response;
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
WHERE id=$1 LIMIT 1;
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
LIMIT $1 OFFSET $2;
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
WHERE status IN ($1, $2)
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
