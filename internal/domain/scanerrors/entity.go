package scanerrors

import "time"

// Phase of the pipeline where a scan failed
const (
	PhaseInput    = "input"
	PhaseFetch    = "fetch"
	PhaseAnalyze  = "analyze"
	PhaseInternal = "internal"
)

// ScanError represents a persisted scan failure entry
type ScanError struct {
	ID        int64     `json:"id"`
	ScanID    string    `json:"scan_id"`
	Phase     string    `json:"phase"` // input | fetch | analyze | internal
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
