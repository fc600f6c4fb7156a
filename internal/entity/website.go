package entity

import "time"

// WebsiteStatus tracks the crawl state of a website.
type WebsiteStatus string

const (
	WebsitePending   WebsiteStatus = "PENDING"
	WebsiteCrawling  WebsiteStatus = "CRAWLING"
	WebsiteCompleted WebsiteStatus = "COMPLETED"
	WebsiteError     WebsiteStatus = "ERROR"
)

// Website is a registered crawl root.
type Website struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	URL         string        `json:"url"`
	CrawlDepth  int           `json:"crawl_depth"`
	MaxPages    int           `json:"max_pages"`
	Status      WebsiteStatus `json:"status"`
	LastCrawled *time.Time    `json:"last_crawled,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	CrawlErrors []string      `json:"crawl_errors,omitempty"`
}

// Target returns the crawl bounds configured for the website.
func (w *Website) Target() CrawlTarget {
	return CrawlTarget{RootURL: w.URL, MaxDepth: w.CrawlDepth, MaxPages: w.MaxPages}
}

// CrawlTarget bounds a single crawl.
type CrawlTarget struct {
	RootURL  string `validate:"required,url"`
	MaxDepth int    `validate:"gte=0"`
	MaxPages int    `validate:"gt=0"`
}

// CrawlResult is the outcome of one crawl.
type CrawlResult struct {
	Pages  []PageRecord
	Errors []string
}

// WebsiteStatusView is the read model behind the status endpoint.
type WebsiteStatusView struct {
	Website    *Website
	PagesFound int
}
