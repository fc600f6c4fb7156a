package request

// CrawlRequest is the optional body of POST /api/websites/{id}/crawl.
type CrawlRequest struct {
	Force bool `json:"force"`
}

type CreateTestRunsRequest struct {
	TestCaseIDs []string `json:"test_case_ids" validate:"required,min=1,dive,required"`
	UserID      string   `json:"user_id" validate:"required"`
}
