package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/crawltest-service/internal/entity"
)

// pageMetadata is the jsonb column holding the structured page elements.
type pageMetadata struct {
	Forms   []entity.FormData   `json:"forms"`
	Buttons []entity.ButtonData `json:"buttons"`
	Links   []entity.LinkData   `json:"links"`
	Inputs  []entity.InputData  `json:"inputs"`
}

// PageRepoImpl implements repository.PageRepository on PostgreSQL.
type PageRepoImpl struct {
	db DBPool
}

func NewPageRepo(db DBPool) *PageRepoImpl {
	return &PageRepoImpl{db: db}
}

// Save stores or updates the page for its website and URL.
func (r *PageRepoImpl) Save(ctx context.Context, page *entity.WebsitePage) error {
	meta, err := json.Marshal(pageMetadata{Forms: page.Forms, Buttons: page.Buttons, Links: page.Links, Inputs: page.Inputs})
	if err != nil {
		return fmt.Errorf("failed to encode page metadata: %w", err)
	}

	query := `
		INSERT INTO website_pages (id, website_id, url, depth, title, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (website_id, url) DO UPDATE SET
			depth = EXCLUDED.depth,
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata
		RETURNING id;
	`
	return r.db.QueryRow(ctx, query,
		page.ID, page.WebsiteID, page.URL, page.Depth, page.Title, page.Content, meta, page.CreatedAt,
	).Scan(&page.ID)
}

func (r *PageRepoImpl) ListByWebsite(ctx context.Context, websiteID string) ([]*entity.WebsitePage, error) {
	query := `
		SELECT id, website_id, url, depth, title, content, metadata, created_at
		FROM website_pages
		WHERE website_id = $1
		ORDER BY depth, created_at;
	`
	rows, err := r.db.Query(ctx, query, websiteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []*entity.WebsitePage
	for rows.Next() {
		var (
			p   entity.WebsitePage
			raw []byte
			m   pageMetadata
		)
		if err := rows.Scan(&p.ID, &p.WebsiteID, &p.URL, &p.Depth, &p.Title, &p.Content, &raw, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of page %s: %w", p.ID, err)
		}
		p.Forms, p.Buttons, p.Links, p.Inputs = m.Forms, m.Buttons, m.Links, m.Inputs
		pages = append(pages, &p)
	}
	return pages, rows.Err()
}

func (r *PageRepoImpl) CountByWebsite(ctx context.Context, websiteID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM website_pages WHERE website_id = $1;`, websiteID).Scan(&n)
	return n, err
}
