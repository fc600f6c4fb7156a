package postgres

import (
	"context"
	"time"

	"github.com/user/crawltest-service/internal/entity"
	"github.com/user/crawltest-service/internal/repository"
)

// WebsiteRepoImpl implements repository.WebsiteRepository on PostgreSQL.
type WebsiteRepoImpl struct {
	db DBPool
}

func NewWebsiteRepo(db DBPool) *WebsiteRepoImpl {
	return &WebsiteRepoImpl{db: db}
}

func (r *WebsiteRepoImpl) FindByID(ctx context.Context, id string) (*entity.Website, error) {
	query := `
		SELECT id, name, url, crawl_depth, max_pages, status, last_crawled, COALESCE(last_error, ''), crawl_errors
		FROM websites
		WHERE id = $1;
	`
	var (
		w      entity.Website
		status string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&w.ID, &w.Name, &w.URL, &w.CrawlDepth, &w.MaxPages, &status, &w.LastCrawled, &w.LastError, &w.CrawlErrors,
	)
	if err != nil {
		return nil, notFound(err)
	}
	w.Status = entity.WebsiteStatus(status)
	return &w, nil
}

func (r *WebsiteRepoImpl) MarkCrawling(ctx context.Context, id string) error {
	return r.update(ctx, `UPDATE websites SET status = $2, last_error = NULL WHERE id = $1;`, id, string(entity.WebsiteCrawling))
}

func (r *WebsiteRepoImpl) MarkCrawled(ctx context.Context, id string, crawlErrors []string) error {
	if crawlErrors == nil {
		crawlErrors = []string{}
	}
	return r.update(ctx,
		`UPDATE websites SET status = $2, last_crawled = $3, crawl_errors = $4, last_error = NULL WHERE id = $1;`,
		id, string(entity.WebsiteCompleted), time.Now().UTC(), crawlErrors)
}

func (r *WebsiteRepoImpl) MarkError(ctx context.Context, id, reason string) error {
	return r.update(ctx, `UPDATE websites SET status = $2, last_error = $3 WHERE id = $1;`, id, string(entity.WebsiteError), reason)
}

func (r *WebsiteRepoImpl) update(ctx context.Context, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
