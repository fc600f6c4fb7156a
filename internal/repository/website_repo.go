package repository

import (
	"context"

	"github.com/user/crawltest-service/internal/entity"
)

type WebsiteRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Website, error)
	// MarkCrawling sets the website status to CRAWLING and clears the last error.
	MarkCrawling(ctx context.Context, id string) error
	// MarkCrawled sets COMPLETED, the crawl time and the per-page errors.
	MarkCrawled(ctx context.Context, id string, crawlErrors []string) error
	MarkError(ctx context.Context, id string, reason string) error
}
