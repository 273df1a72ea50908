package scans

import "context"

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, s *Scan) error
	Get(ctx context.Context, id ScanID) (*Scan, error)
	List(ctx context.Context, page, pageSize int) (PaginatedResult, error)

	// ListPending returns scans stuck in non-terminal states, used by the
	// recovery sweep to requeue work lost to a crash.
	ListPending(ctx context.Context) ([]*Scan, error)
}

// Analyzer port (interface untuk AI inference)
type Analyzer interface {
	Analyze(ctx context.Context, code string) (Analysis, error)
}

// SourceFetcher port: turns a remote repository into analyzable source units.
type SourceFetcher interface {
	Fetch(ctx context.Context, repoURL, branch string) ([]SourceUnit, error)
}

// Dispatcher port: schedules orchestration for a persisted Pending scan.
type Dispatcher interface {
	Enqueue(id ScanID)
}

// ReportStore port (interface untuk penyimpanan raw analysis output)
type ReportStore interface {
	UploadReport(ctx context.Context, id ScanID, report []byte) (string, error)
}
