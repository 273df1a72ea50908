package scans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/vulnscan/internal/domain/scanerrors"
	domain "github.com/bryanwahyu/vulnscan/internal/domain/scans"
)

// memRepo is an in-memory Repository that records every Save.
type memRepo struct {
	mu    sync.Mutex
	scans map[domain.ScanID]*domain.Scan
	saves []domain.Scan

	saveErr error
}

func newMemRepo(seed ...*domain.Scan) *memRepo {
	r := &memRepo{scans: make(map[domain.ScanID]*domain.Scan)}
	for _, s := range seed {
		cp := *s
		r.scans[s.ID] = &cp
	}
	return r
}

func (r *memRepo) Save(ctx context.Context, s *domain.Scan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	cp := *s
	r.scans[s.ID] = &cp
	r.saves = append(r.saves, cp)
	return nil
}

func (r *memRepo) Get(ctx context.Context, id domain.ScanID) (*domain.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scans[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memRepo) List(ctx context.Context, page, pageSize int) (domain.PaginatedResult, error) {
	return domain.PaginatedResult{Page: page, PageSize: pageSize}, nil
}

func (r *memRepo) ListPending(ctx context.Context) ([]*domain.Scan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Scan
	for _, s := range r.scans {
		if !s.Status.IsTerminal() {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) statuses() []domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Status, len(r.saves))
	for i, s := range r.saves {
		out[i] = s.Status
	}
	return out
}

// fakeAnalyzer maps code content to a fixed verdict.
type fakeAnalyzer struct {
	mu       sync.Mutex
	verdicts map[string]domain.Analysis
	err      error
	calls    []string
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, code string) (domain.Analysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, code)
	if a.err != nil {
		return domain.Analysis{}, a.err
	}
	if v, ok := a.verdicts[code]; ok {
		return v, nil
	}
	return domain.Analysis{RawResponse: `{"label":"SAFE","confidence":0.5}`, Confidence: 0.5}, nil
}

type fakeFetcher struct {
	units []domain.SourceUnit
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, repoURL, branch string) ([]domain.SourceUnit, error) {
	return f.units, f.err
}

type fakeReports struct {
	uploads map[domain.ScanID][]byte
}

func (r *fakeReports) UploadReport(ctx context.Context, id domain.ScanID, report []byte) (string, error) {
	if r.uploads == nil {
		r.uploads = make(map[domain.ScanID][]byte)
	}
	r.uploads[id] = report
	return "https://store.local/scans/" + string(id) + ".json", nil
}

type memErrs struct {
	saved []*scanerrors.ScanError
}

func (m *memErrs) Save(ctx context.Context, e *scanerrors.ScanError) error {
	m.saved = append(m.saved, e)
	return nil
}

func (m *memErrs) ListByScan(ctx context.Context, scanID string, limit int) ([]*scanerrors.ScanError, error) {
	return m.saved, nil
}

func vulnVerdict(conf float64) domain.Analysis {
	return domain.Analysis{
		HasVulnerabilities: true,
		Confidence:         conf,
		RawResponse:        fmt.Sprintf(`{"label":"VULN","confidence":%v}`, conf),
	}
}

func TestExecuteCodeScanCompletes(t *testing.T) {
	scan := &domain.Scan{ID: "s1", Type: domain.TypeCode, Code: "eval(x)", Status: domain.StatusPending}
	repo := newMemRepo(scan)
	analyzer := &fakeAnalyzer{verdicts: map[string]domain.Analysis{"eval(x)": vulnVerdict(0.92)}}

	o := &Orchestrator{Repo: repo, Analyzer: analyzer}
	require.NoError(t, o.Execute(context.Background(), "s1"))

	final, _ := repo.Get(context.Background(), "s1")
	assert.Equal(t, domain.StatusCompleted, final.Status)
	require.NotNil(t, final.HasVulnerabilities)
	assert.True(t, *final.HasVulnerabilities)
	require.NotNil(t, final.ConfidenceScore)
	assert.Equal(t, 0.92, *final.ConfidenceScore)
	assert.Contains(t, final.AIRawResponse, "VULN")

	// running is persisted before the verdict, then exactly one final save
	assert.Equal(t, []domain.Status{domain.StatusRunning, domain.StatusCompleted}, repo.statuses())
}

func TestExecuteEmptyCodeFails(t *testing.T) {
	scan := &domain.Scan{ID: "s1", Type: domain.TypeCode, Code: "   ", Status: domain.StatusPending}
	repo := newMemRepo(scan)
	analyzer := &fakeAnalyzer{}
	errs := &memErrs{}

	o := &Orchestrator{Repo: repo, Analyzer: analyzer, Errors: errs}
	require.NoError(t, o.Execute(context.Background(), "s1"))

	final, _ := repo.Get(context.Background(), "s1")
	assert.Equal(t, domain.StatusFailed, final.Status)
	assert.Empty(t, analyzer.calls, "analyzer must not run for empty input")

	require.Len(t, errs.saved, 1)
	assert.Equal(t, scanerrors.PhaseInput, errs.saved[0].Phase)
}

func TestExecuteAnalyzerErrorDegrades(t *testing.T) {
	scan := &domain.Scan{ID: "s1", Type: domain.TypeCode, Code: "x", Status: domain.StatusPending}
	repo := newMemRepo(scan)
	analyzer := &fakeAnalyzer{err: errors.New("ai service returned 503")}

	o := &Orchestrator{Repo: repo, Analyzer: analyzer}
	require.NoError(t, o.Execute(context.Background(), "s1"))

	// inference failure is a degraded verdict, not a failed scan
	final, _ := repo.Get(context.Background(), "s1")
	assert.Equal(t, domain.StatusCompleted, final.Status)
	require.NotNil(t, final.HasVulnerabilities)
	assert.False(t, *final.HasVulnerabilities)
	assert.Equal(t, 0.0, *final.ConfidenceScore)
	assert.Contains(t, final.AIRawResponse, "ai service returned 503")
}

func TestExecuteRepoScanAggregates(t *testing.T) {
	scan := &domain.Scan{ID: "s1", Type: domain.TypeRepoURL, RepoURL: "https://example.com/r.git", Branch: "main", Status: domain.StatusPending}
	repo := newMemRepo(scan)
	analyzer := &fakeAnalyzer{verdicts: map[string]domain.Analysis{
		"bad1": vulnVerdict(0.7),
		"bad2": vulnVerdict(0.9),
	}}
	fetcher := &fakeFetcher{units: []domain.SourceUnit{
		{Path: "a.py", Content: "bad1"},
		{Path: "b.js", Content: "bad2"},
		{Path: "c.go", Content: "clean"},
	}}
	reports := &fakeReports{}

	o := &Orchestrator{Repo: repo, Analyzer: analyzer, Fetcher: fetcher, Reports: reports}
	require.NoError(t, o.Execute(context.Background(), "s1"))

	final, _ := repo.Get(context.Background(), "s1")
	assert.Equal(t, domain.StatusCompleted, final.Status)
	assert.True(t, *final.HasVulnerabilities)
	assert.Equal(t, 0.9, *final.ConfidenceScore, "confidence is the max among vulnerable files")

	var results []fileResult
	require.NoError(t, json.Unmarshal([]byte(final.AIRawResponse), &results))
	require.Len(t, results, 3)
	assert.Equal(t, "a.py", results[0].File)
	assert.True(t, *results[0].IsVulnerable)
	assert.False(t, *results[2].IsVulnerable)

	// aggregate report archived under the scan id
	assert.Contains(t, reports.uploads, domain.ScanID("s1"))
}

func TestExecuteRepoScanSkipsOversizedAndBlankUnits(t *testing.T) {
	scan := &domain.Scan{ID: "s1", Type: domain.TypeRepoURL, RepoURL: "https://example.com/r.git", Status: domain.StatusPending}
	repo := newMemRepo(scan)
	analyzer := &fakeAnalyzer{}
	fetcher := &fakeFetcher{units: []domain.SourceUnit{
		{Path: "big.c", Content: strings.Repeat("a", 20)},
		{Path: "blank.py", Content: "   \n\t"},
		{Path: "ok.go", Content: "ok"},
	}}

	o := &Orchestrator{Repo: repo, Analyzer: analyzer, Fetcher: fetcher, MaxUnitBytes: 10}
	require.NoError(t, o.Execute(context.Background(), "s1"))

	final, _ := repo.Get(context.Background(), "s1")
	var results []fileResult
	require.NoError(t, json.Unmarshal([]byte(final.AIRawResponse), &results))

	// blank unit produces no entry, oversized unit is marked, small unit analyzed
	require.Len(t, results, 2)
	assert.Equal(t, "big.c", results[0].File)
	assert.Equal(t, "skipped_too_large", results[0].Status)
	assert.Nil(t, results[0].IsVulnerable)
	assert.Equal(t, "ok.go", results[1].File)

	assert.Equal(t, []string{"ok"}, analyzer.calls)
}

func TestExecuteCloneFailureFails(t *testing.T) {
	scan := &domain.Scan{ID: "s1", Type: domain.TypeRepoURL, RepoURL: "https://example.com/missing.git", Status: domain.StatusPending}
	repo := newMemRepo(scan)
	errs := &memErrs{}
	fetcher := &fakeFetcher{err: fmt.Errorf("%w: repository not found", domain.ErrCloneFailed)}

	o := &Orchestrator{Repo: repo, Analyzer: &fakeAnalyzer{}, Fetcher: fetcher, Errors: errs}
	require.NoError(t, o.Execute(context.Background(), "s1"))

	final, _ := repo.Get(context.Background(), "s1")
	assert.Equal(t, domain.StatusFailed, final.Status)
	assert.Contains(t, final.AIRawResponse, "repository not found")

	require.Len(t, errs.saved, 1)
	assert.Equal(t, scanerrors.PhaseFetch, errs.saved[0].Phase)
}

func TestExecuteEmptyRepoUnitsFails(t *testing.T) {
	scan := &domain.Scan{ID: "s1", Type: domain.TypeRepoURL, RepoURL: "https://example.com/r.git", Status: domain.StatusPending}
	repo := newMemRepo(scan)
	fetcher := &fakeFetcher{err: domain.ErrNoSourceFiles}

	o := &Orchestrator{Repo: repo, Analyzer: &fakeAnalyzer{}, Fetcher: fetcher}
	require.NoError(t, o.Execute(context.Background(), "s1"))

	final, _ := repo.Get(context.Background(), "s1")
	assert.Equal(t, domain.StatusFailed, final.Status)
}

func TestExecuteTerminalScanIsNoOp(t *testing.T) {
	scan := &domain.Scan{ID: "s1", Type: domain.TypeCode, Code: "x", Status: domain.StatusCompleted}
	repo := newMemRepo(scan)
	analyzer := &fakeAnalyzer{}

	o := &Orchestrator{Repo: repo, Analyzer: analyzer}
	require.NoError(t, o.Execute(context.Background(), "s1"))

	assert.Empty(t, repo.statuses(), "terminal scan must not be re-persisted")
	assert.Empty(t, analyzer.calls)
}

func TestExecuteMissingScanIsNoOp(t *testing.T) {
	repo := newMemRepo()

	o := &Orchestrator{Repo: repo, Analyzer: &fakeAnalyzer{}}
	require.NoError(t, o.Execute(context.Background(), "ghost"))

	assert.Empty(t, repo.statuses())
}
