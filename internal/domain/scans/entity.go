package scans

import (
	"time"
)

// ID tipe untuk Scan
type ScanID string

// ScanType enum
type ScanType string

const (
	TypeCode    ScanType = "code"
	TypeRepoURL ScanType = "repo_url"
)

// Status enum
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transitions may occur.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Aggregate Root: Scan
type Scan struct {
	ID                 ScanID    `json:"id"`
	Type               ScanType  `json:"type"`
	Code               string    `json:"code,omitempty"`
	RepoURL            string    `json:"repo_url,omitempty"`
	Branch             string    `json:"branch,omitempty"`
	Status             Status    `json:"status"`
	HasVulnerabilities *bool     `json:"has_vulnerabilities,omitempty"`
	ConfidenceScore    *float64  `json:"confidence_score,omitempty"`
	AIRawResponse      string    `json:"ai_raw_response,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}
