package scans

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/vulnscan/internal/domain/scans"
)

// Service implements use-cases untuk Scan
// Service is designed to be used concurrently and is thread-safe
type Service struct {
	Repo  domain.Repository
	Jobs  domain.Dispatcher
	Clock Clock
}

// Clock abstraction supaya gampang ditest
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

//
// ==== USE CASES ====
//

// Command untuk submit scan
type CreateScanCommand struct {
	Type    string
	Code    string
	RepoURL string
	Branch  string
}

// CreateScan persists a Pending record and schedules orchestration. The scan
// runs in the background; callers poll GetScan for the verdict.
func (s *Service) CreateScan(ctx context.Context, cmd CreateScanCommand) (*domain.Scan, error) {
	branch := strings.TrimSpace(cmd.Branch)
	if branch == "" {
		branch = "main"
	}

	scan := &domain.Scan{
		ID:        domain.ScanID(uuid.New().String()),
		Type:      domain.ScanType(cmd.Type),
		Status:    domain.StatusPending,
		Branch:    branch,
		CreatedAt: s.Clock.Now(),
	}
	// exactly one target variant is populated
	switch scan.Type {
	case domain.TypeCode:
		scan.Code = cmd.Code
	case domain.TypeRepoURL:
		scan.RepoURL = cmd.RepoURL
	}

	if err := s.Repo.Save(ctx, scan); err != nil {
		return nil, err
	}

	// enqueue only after the Pending row is durable
	s.Jobs.Enqueue(scan.ID)

	return scan, nil
}

// GetScan ambil 1 scan by id
func (s *Service) GetScan(ctx context.Context, id domain.ScanID) (*domain.Scan, error) {
	return s.Repo.Get(ctx, id)
}

// ListScans ambil scans dengan pagination
func (s *Service) ListScans(ctx context.Context, page, pageSize int) (domain.PaginatedResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return s.Repo.List(ctx, page, pageSize)
}
