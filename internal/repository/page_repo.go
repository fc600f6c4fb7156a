package repository

import (
	"context"

	"github.com/user/crawltest-service/internal/entity"
)

type PageRepository interface {
	// Save stores the page, replacing any earlier record for the same website and URL.
	Save(ctx context.Context, page *entity.WebsitePage) error
	ListByWebsite(ctx context.Context, websiteID string) ([]*entity.WebsitePage, error)
	CountByWebsite(ctx context.Context, websiteID string) (int, error)
}
