package usecase

import "errors"

var (
	ErrCrawlInProgress   = errors.New("a crawl for this website is already in progress and force is false")
	ErrNoTestCases       = errors.New("at least one test case id is required")
	ErrInvalidTarget     = errors.New("invalid crawl target")
	ErrUnknownJobKind    = errors.New("unknown job kind")
	ErrInvalidJobPayload = errors.New("invalid job payload")
)
