package entity

import (
	"encoding/json"
	"time"
)

// JobKind names one of the queues the worker consumes.
type JobKind string

const (
	JobKindCrawl            JobKind = "crawl"
	JobKindTestExecution    JobKind = "test-execution"
	JobKindScheduleDispatch JobKind = "scheduled-dispatch"
)

// JobKinds is the order in which workers poll the queues.
var JobKinds = []JobKind{JobKindTestExecution, JobKindScheduleDispatch, JobKindCrawl}

// Job is a unit of background work with a durable status.
type Job struct {
	ID         string          `json:"id"`
	Kind       JobKind         `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	Status     Status          `json:"status"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// CrawlPayload is carried by crawl jobs. LockToken identifies the job's hold
// on the website's crawl lock.
type CrawlPayload struct {
	WebsiteID string `json:"website_id" validate:"required"`
	LockToken string `json:"lock_token" validate:"required"`
}

// TestExecutionPayload is carried by test-execution jobs.
type TestExecutionPayload struct {
	TestRunID  string `json:"test_run_id" validate:"required"`
	TestCaseID string `json:"test_case_id" validate:"required"`
	UserID     string `json:"user_id"`
}

// ScheduleDispatchPayload is carried by scheduled-dispatch jobs.
type ScheduleDispatchPayload struct {
	ScheduleID string `json:"schedule_id" validate:"required"`
}
