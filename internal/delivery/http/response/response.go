package response

import "time"

// JobAcceptedResponse is returned by every endpoint that enqueues a job.
type JobAcceptedResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

type WebsiteStatusResponse struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	LastCrawled *time.Time `json:"last_crawled,omitempty"`
	PagesFound  int        `json:"pages_found"`
	LastError   string     `json:"last_error,omitempty"`
	CrawlErrors []string   `json:"crawl_errors,omitempty"`
}

type GenerateTestsResponse struct {
	Count       int      `json:"count"`
	Source      string   `json:"source"`
	TestCaseIDs []string `json:"test_case_ids"`
}

type TestRunsAcceptedResponse struct {
	Status     string   `json:"status"`
	TestRunIDs []string `json:"test_run_ids"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
