package entity

import "time"

type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Source records where a test case's steps came from.
type Source string

const (
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
	SourceManual   Source = "manual"
)

type TestCaseStatus string

const (
	TestCaseActive   TestCaseStatus = "ACTIVE"
	TestCaseInactive TestCaseStatus = "INACTIVE"
)

// TestCase is an ordered sequence of steps against one website.
type TestCase struct {
	ID          string         `json:"id"`
	WebsiteID   string         `json:"website_id"`
	PageID      string         `json:"page_id,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Steps       Steps          `json:"steps"`
	Priority    Priority       `json:"priority"`
	Tags        []string       `json:"tags"`
	Source      Source         `json:"source"`
	Status      TestCaseStatus `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
}
