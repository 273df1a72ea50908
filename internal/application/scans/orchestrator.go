package scans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/bryanwahyu/vulnscan/internal/domain/scanerrors"
	domain "github.com/bryanwahyu/vulnscan/internal/domain/scans"
)

const defaultMaxUnitBytes = 100_000

// Orchestrator is the background job body: it drives one scan record through
// pending -> running -> completed/failed and persists the verdict.
type Orchestrator struct {
	Repo     domain.Repository
	Analyzer domain.Analyzer
	Fetcher  domain.SourceFetcher
	Reports  domain.ReportStore    // optional, may be nil
	Errors   scanerrors.Repository // optional, may be nil

	// MaxUnitBytes caps the size of one analysis call; larger units are
	// recorded as skipped_too_large. Zero means the default 100k.
	MaxUnitBytes int
}

// Execute runs the full state machine for one scan identifier. It is safe
// against duplicate delivery: a missing record or an already-terminal record
// is a no-op.
func (o *Orchestrator) Execute(ctx context.Context, id domain.ScanID) error {
	scan, err := o.Repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load scan %s: %w", id, err)
	}
	if scan == nil {
		return nil
	}
	if scan.Status.IsTerminal() {
		log.Printf("scan %s already %s, skipping redelivery", scan.ID, scan.Status)
		return nil
	}

	// persist Running first so a crash mid-scan is externally observable
	scan.Status = domain.StatusRunning
	if err := o.Repo.Save(ctx, scan); err != nil {
		return fmt.Errorf("mark running %s: %w", id, err)
	}

	result, runErr := o.run(ctx, scan)
	if runErr != nil {
		// the only path that can set Failed
		scan.Status = domain.StatusFailed
		scan.AIRawResponse = runErr.Error()
		o.recordFailure(ctx, scan.ID, runErr)
		log.Printf("scan %s failed: %v", scan.ID, runErr)
	} else {
		scan.Status = domain.StatusCompleted
		scan.HasVulnerabilities = &result.HasVulnerabilities
		scan.ConfidenceScore = &result.Confidence
		scan.AIRawResponse = result.RawResponse
	}

	// success and failure converge on a single final persist
	if err := o.Repo.Save(ctx, scan); err != nil {
		return fmt.Errorf("persist final state %s: %w", id, err)
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, scan *domain.Scan) (domain.Analysis, error) {
	switch scan.Type {
	case domain.TypeCode:
		if strings.TrimSpace(scan.Code) == "" {
			return domain.Analysis{}, domain.ErrEmptyCode
		}
		return o.analyzeUnit(ctx, scan.Code), nil

	case domain.TypeRepoURL:
		if strings.TrimSpace(scan.RepoURL) == "" {
			return domain.Analysis{}, domain.ErrEmptyRepoURL
		}
		units, err := o.Fetcher.Fetch(ctx, scan.RepoURL, scan.Branch)
		if err != nil {
			return domain.Analysis{}, err
		}
		return o.analyzeRepo(ctx, scan.ID, units), nil

	default:
		return domain.Analysis{}, fmt.Errorf("unsupported scan type: %s", scan.Type)
	}
}

// analyzeUnit never fails: exhausted retries degrade to a recorded failure
// for that call instead of propagating.
func (o *Orchestrator) analyzeUnit(ctx context.Context, code string) domain.Analysis {
	res, err := o.Analyzer.Analyze(ctx, code)
	if err != nil {
		raw, _ := json.Marshal(map[string]string{"error": err.Error()})
		return domain.Analysis{
			HasVulnerabilities: false,
			Confidence:         0,
			RawResponse:        string(raw),
		}
	}
	return res
}

// fileResult is one entry of the aggregate raw response for repository scans.
type fileResult struct {
	File         string   `json:"file"`
	Status       string   `json:"status,omitempty"`
	IsVulnerable *bool    `json:"isVulnerable,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
}

func (o *Orchestrator) analyzeRepo(ctx context.Context, id domain.ScanID, units []domain.SourceUnit) domain.Analysis {
	maxUnit := o.MaxUnitBytes
	if maxUnit <= 0 {
		maxUnit = defaultMaxUnitBytes
	}

	anyVuln := false
	maxConfidence := 0.0
	results := make([]fileResult, 0, len(units))

	// sequential per-unit calls keep outbound concurrency against the AI
	// service at one in-flight request per scan
	for _, unit := range units {
		if strings.TrimSpace(unit.Content) == "" {
			continue
		}
		if len(unit.Content) > maxUnit {
			results = append(results, fileResult{File: unit.Path, Status: "skipped_too_large"})
			continue
		}

		res := o.analyzeUnit(ctx, unit.Content)
		vuln := res.HasVulnerabilities
		conf := res.Confidence
		results = append(results, fileResult{
			File:         unit.Path,
			IsVulnerable: &vuln,
			Confidence:   &conf,
		})

		if vuln {
			anyVuln = true
			if conf > maxConfidence {
				maxConfidence = conf
			}
		}
	}

	raw, _ := json.Marshal(results)
	o.archiveReport(ctx, id, raw)

	return domain.Analysis{
		HasVulnerabilities: anyVuln,
		Confidence:         maxConfidence,
		RawResponse:        string(raw),
	}
}

// archiveReport uploads the aggregate per-file outcomes; failures only log.
func (o *Orchestrator) archiveReport(ctx context.Context, id domain.ScanID, report []byte) {
	if o.Reports == nil {
		return
	}
	url, err := o.Reports.UploadReport(ctx, id, report)
	if err != nil {
		log.Printf("scan %s: report upload failed: %v", id, err)
		return
	}
	log.Printf("scan %s: report archived at %s", id, url)
}

func (o *Orchestrator) recordFailure(ctx context.Context, id domain.ScanID, cause error) {
	if o.Errors == nil {
		return
	}
	e := &scanerrors.ScanError{
		ScanID:  string(id),
		Phase:   failurePhase(cause),
		Message: cause.Error(),
	}
	if err := o.Errors.Save(ctx, e); err != nil {
		log.Printf("scan %s: saving scan error failed: %v", id, err)
	}
}

func failurePhase(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyCode), errors.Is(err, domain.ErrEmptyRepoURL):
		return scanerrors.PhaseInput
	case errors.Is(err, domain.ErrCloneFailed),
		errors.Is(err, domain.ErrRepoTooLarge),
		errors.Is(err, domain.ErrNoSourceFiles):
		return scanerrors.PhaseFetch
	default:
		return scanerrors.PhaseInternal
	}
}
