package scans

// SourceUnit is one file extracted from a cloned repository, the unit of
// analysis sent to the AI service.
type SourceUnit struct {
	Path    string
	Content string
}

// Analysis is the verdict returned by an Analyzer for a single unit of code.
type Analysis struct {
	HasVulnerabilities bool
	Confidence         float64
	RawResponse        string
}
