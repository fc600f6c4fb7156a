package entity

import "time"

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// BugRecord is filed for a failed test run.
type BugRecord struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Severity          Severity  `json:"severity"`
	AISummary         string    `json:"ai_summary"`
	RootCause         string    `json:"root_cause"`
	ReproductionSteps []string  `json:"reproduction_steps"`
	Logs              []string  `json:"logs"`
	Screenshots       []string  `json:"screenshots"`
	RelatedTestRunID  string    `json:"related_test_run_id"`
	TestCaseID        string    `json:"test_case_id"`
	ReportedBy        string    `json:"reported_by"`
	Fingerprint       string    `json:"fingerprint"`
	CreatedAt         time.Time `json:"created_at"`
}

// SeverityFor maps a test case priority onto a bug severity.
func SeverityFor(p Priority) Severity {
	switch p {
	case PriorityCritical:
		return SeverityCritical
	case PriorityHigh:
		return SeverityHigh
	case PriorityLow:
		return SeverityLow
	default:
		return SeverityMedium
	}
}
