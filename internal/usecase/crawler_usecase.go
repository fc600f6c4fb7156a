package usecase

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/user/crawltest-service/internal/entity"
	"github.com/user/crawltest-service/internal/extractor"
	"github.com/user/crawltest-service/internal/repository"
	"github.com/user/crawltest-service/pkg/metrics"
	"github.com/user/crawltest-service/pkg/utils"
)

// maxLinksPerPage caps how many new links a single page may add to the queue.
const maxLinksPerPage = 10

// Crawler walks a site breadth-first within the bounds of a CrawlTarget.
type Crawler interface {
	Crawl(ctx context.Context, session repository.BrowserSession, target entity.CrawlTarget) (*entity.CrawlResult, error)
}

type crawlerUseCase struct {
	requestDelay time.Duration
	validate     *validator.Validate
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewCrawlerUseCase creates a crawler that waits requestDelay between page fetches.
func NewCrawlerUseCase(requestDelay time.Duration, m *metrics.Metrics, logger *zap.Logger) Crawler {
	return &crawlerUseCase{
		requestDelay: requestDelay,
		validate:     validator.New(),
		metrics:      m,
		logger:       logger.Named("crawler"),
	}
}

type queuedURL struct {
	url   string
	depth int
}

// Crawl returns the pages it could extract and one message per page that failed.
// It only returns an error for an invalid target or a cancelled context; in the
// latter case the partial result is returned alongside the error.
func (uc *crawlerUseCase) Crawl(ctx context.Context, session repository.BrowserSession, target entity.CrawlTarget) (*entity.CrawlResult, error) {
	if err := uc.validate.Struct(target); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	rootURL, err := utils.NormalizeURL(nil, target.RootURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	root, _ := url.Parse(rootURL)

	limit := rate.Inf
	if uc.requestDelay > 0 {
		limit = rate.Every(uc.requestDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	result := &entity.CrawlResult{Pages: []entity.PageRecord{}, Errors: []string{}}
	visited := make(map[string]struct{})
	queued := map[string]struct{}{rootURL: {}}
	queue := []queuedURL{{url: rootURL, depth: 0}}

	start := time.Now()
	defer func() {
		uc.metrics.CrawlDuration.WithLabelValues(root.Hostname()).Observe(time.Since(start).Seconds())
	}()

	for len(queue) > 0 && len(result.Pages) < target.MaxPages {
		next := queue[0]
		queue = queue[1:]

		if _, seen := visited[next.url]; seen || next.depth > target.MaxDepth {
			continue
		}
		visited[next.url] = struct{}{}

		if err := limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("crawl aborted: %w", err)
		}

		page, err := uc.fetch(ctx, session, next.url)
		if err != nil {
			if ctx.Err() != nil {
				return result, fmt.Errorf("crawl aborted: %w", ctx.Err())
			}
			uc.logger.Warn("failed to crawl page", zap.String("url", next.url), zap.Error(err))
			uc.metrics.PagesCrawledTotal.WithLabelValues("failure").Inc()
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to crawl %s: %v", next.url, err))
			continue
		}
		uc.metrics.PagesCrawledTotal.WithLabelValues("success").Inc()
		page.URL = next.url
		page.Depth = next.depth
		result.Pages = append(result.Pages, *page)

		if next.depth >= target.MaxDepth {
			continue
		}
		base, _ := url.Parse(next.url)
		added := 0
		for _, link := range page.Links {
			if added >= maxLinksPerPage {
				break
			}
			childURL, err := utils.NormalizeURL(base, link.Href)
			if err != nil {
				continue
			}
			child, err := url.Parse(childURL)
			if err != nil || !utils.SameOrigin(root, child) {
				continue
			}
			if _, ok := queued[childURL]; ok {
				continue
			}
			queued[childURL] = struct{}{}
			queue = append(queue, queuedURL{url: childURL, depth: next.depth + 1})
			added++
		}
	}

	uc.logger.Info("crawl finished",
		zap.String("root", rootURL),
		zap.Int("pages", len(result.Pages)),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// fetch opens a fresh page for rawURL and always closes it.
func (uc *crawlerUseCase) fetch(ctx context.Context, session repository.BrowserSession, rawURL string) (*entity.PageRecord, error) {
	page, err := session.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			uc.logger.Debug("failed to close page", zap.String("url", rawURL), zap.Error(cerr))
		}
	}()

	if err := page.Navigate(ctx, rawURL); err != nil {
		return nil, err
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	record, err := extractor.Extract(html)
	if err != nil {
		return nil, err
	}
	if title, err := page.Title(ctx); err == nil && title != "" {
		record.Title = title
	}
	return record, nil
}
