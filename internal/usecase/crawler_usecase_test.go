package usecase

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/crawltest-service/internal/entity"
)

func newCrawler() Crawler {
	return NewCrawlerUseCase(0, newTestMetrics(), zap.NewNop())
}

func crawl(t *testing.T, site *fakeSite, target entity.CrawlTarget) (*entity.CrawlResult, *fakeSession) {
	t.Helper()
	l := &fakeLauncher{site: site}
	s, err := l.Launch(context.Background())
	require.NoError(t, err)
	res, err := newCrawler().Crawl(context.Background(), s, target)
	require.NoError(t, err)
	return res, s.(*fakeSession)
}

func urls(pages []entity.PageRecord) []string {
	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.URL
	}
	return out
}

func TestCrawlScenarioSameOriginOnly(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"https://x.test/":  page("home", "/a", "/b#frag", "https://x.test/c", "https://elsewhere.test/d", "mailto:me@x.test"),
		"https://x.test/a": page("a", "/"),
		"https://x.test/b": page("b"),
		"https://x.test/c": page("c", "/deeper"),
	}}

	res, session := crawl(t, site, entity.CrawlTarget{RootURL: "https://x.test", MaxDepth: 1, MaxPages: 5})

	assert.Equal(t, []string{"https://x.test/", "https://x.test/a", "https://x.test/b", "https://x.test/c"}, urls(res.Pages))
	assert.Empty(t, res.Errors)
	for _, p := range res.Pages {
		assert.LessOrEqual(t, p.Depth, 1)
		u, _ := url.Parse(p.URL)
		assert.Equal(t, "x.test", u.Host)
	}
	for _, p := range session.pages {
		assert.Equal(t, 1, p.closed, "every opened page is closed once")
	}
	assert.Len(t, session.pages, 4)
}

func TestCrawlRespectsMaxPages(t *testing.T) {
	pages := map[string]string{}
	var links []string
	for i := 0; i < 8; i++ {
		links = append(links, fmt.Sprintf("/p%d", i))
		pages[fmt.Sprintf("https://x.test/p%d", i)] = page("p")
	}
	pages["https://x.test/"] = page("home", links...)

	for n := 1; n <= 5; n++ {
		res, _ := crawl(t, &fakeSite{pages: pages}, entity.CrawlTarget{RootURL: "https://x.test/", MaxDepth: 3, MaxPages: n})
		assert.Len(t, res.Pages, n)
	}
}

func TestCrawlDepthZeroOnlyRoot(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"https://x.test/":  page("home", "/a"),
		"https://x.test/a": page("a"),
	}}
	res, _ := crawl(t, site, entity.CrawlTarget{RootURL: "https://x.test/", MaxDepth: 0, MaxPages: 10})
	assert.Equal(t, []string{"https://x.test/"}, urls(res.Pages))
}

func TestCrawlBFSOrderAndNoRevisits(t *testing.T) {
	site := &fakeSite{pages: map[string]string{
		"https://x.test/":   page("home", "/a", "/b"),
		"https://x.test/a":  page("a", "/a1", "/b", "/"),
		"https://x.test/b":  page("b", "/b1", "/a"),
		"https://x.test/a1": page("a1", "/"),
		"https://x.test/b1": page("b1"),
	}}
	res, session := crawl(t, site, entity.CrawlTarget{RootURL: "https://x.test/", MaxDepth: 5, MaxPages: 50})

	assert.Equal(t, []string{"https://x.test/", "https://x.test/a", "https://x.test/b", "https://x.test/a1", "https://x.test/b1"}, urls(res.Pages))
	prev := 0
	for _, p := range res.Pages {
		assert.GreaterOrEqual(t, p.Depth, prev)
		prev = p.Depth
	}
	assert.Len(t, session.pages, 5, "no url fetched twice")
}

func TestCrawlFanOutCap(t *testing.T) {
	pages := map[string]string{}
	var links []string
	for i := 0; i < 25; i++ {
		links = append(links, fmt.Sprintf("/p%d", i))
		pages[fmt.Sprintf("https://x.test/p%d", i)] = page("p")
	}
	pages["https://x.test/"] = page("home", links...)

	res, _ := crawl(t, &fakeSite{pages: pages}, entity.CrawlTarget{RootURL: "https://x.test/", MaxDepth: 1, MaxPages: 100})
	assert.Len(t, res.Pages, 1+maxLinksPerPage)
}

func TestCrawlRecordsPageFailuresAndContinues(t *testing.T) {
	site := &fakeSite{
		pages: map[string]string{
			"https://x.test/":  page("home", "/broken", "/ok"),
			"https://x.test/ok": page("ok"),
		},
		fail: map[string]error{"https://x.test/broken": errBoom},
	}
	res, session := crawl(t, site, entity.CrawlTarget{RootURL: "https://x.test/", MaxDepth: 1, MaxPages: 10})

	assert.Equal(t, []string{"https://x.test/", "https://x.test/ok"}, urls(res.Pages))
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Failed to crawl https://x.test/broken: boom", res.Errors[0])
	assert.Len(t, session.pages, 3, "failed page is not retried")
}

func TestCrawlInvalidTarget(t *testing.T) {
	l := &fakeLauncher{site: &fakeSite{}}
	s, _ := l.Launch(context.Background())
	for _, target := range []entity.CrawlTarget{
		{RootURL: "https://x.test/", MaxDepth: -1, MaxPages: 1},
		{RootURL: "https://x.test/", MaxDepth: 1, MaxPages: 0},
		{RootURL: "not a url", MaxDepth: 1, MaxPages: 1},
		{RootURL: "ftp://x.test/", MaxDepth: 1, MaxPages: 1},
	} {
		_, err := newCrawler().Crawl(context.Background(), s, target)
		assert.ErrorIs(t, err, ErrInvalidTarget, "%+v", target)
	}
}

func TestCrawlCancelled(t *testing.T) {
	site := &fakeSite{pages: map[string]string{"https://x.test/": page("home")}}
	l := &fakeLauncher{site: site}
	s, _ := l.Launch(context.Background())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCrawlerUseCase(1, newTestMetrics(), zap.NewNop())
	_, err := c.Crawl(ctx, s, entity.CrawlTarget{RootURL: "https://x.test/", MaxDepth: 1, MaxPages: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
