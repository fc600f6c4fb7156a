package entity

import "time"

// Schedule groups test cases that are dispatched together, optionally on a cron expression.
type Schedule struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	CronExpr    string     `json:"cron_expr"`
	TestCaseIDs []string   `json:"test_case_ids"`
	IsActive    bool       `json:"is_active"`
	LastRun     *time.Time `json:"last_run,omitempty"`
}
