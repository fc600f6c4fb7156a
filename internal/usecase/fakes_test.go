package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/user/crawltest-service/internal/entity"
	"github.com/user/crawltest-service/internal/repository"
	"github.com/user/crawltest-service/pkg/metrics"
)

func newTestMetrics() *metrics.Metrics { return metrics.New(prometheus.NewRegistry()) }

// --- browser ---

type fakeSite struct {
	pages map[string]string // normalized url -> html
	fail  map[string]error
}

type fakeLauncher struct {
	mu        sync.Mutex
	site      *fakeSite
	launchErr error
	sessions  []*fakeSession

	// page behaviour for executor tests
	visible       map[string]bool
	screenshotErr error
	panicOn       string
}

func (l *fakeLauncher) Launch(context.Context) (repository.BrowserSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	s := &fakeSession{launcher: l}
	l.sessions = append(l.sessions, s)
	return s, nil
}

type fakeSession struct {
	mu       sync.Mutex
	launcher *fakeLauncher
	pages    []*fakePage
	closed   int
}

func (s *fakeSession) NewPage(context.Context) (repository.BrowserPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &fakePage{session: s}
	s.pages = append(s.pages, p)
	return p, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

type fakePage struct {
	session *fakeSession
	current string
	ops     []string
	filled  map[string]string
	closed  int
}

func (p *fakePage) record(op string) { p.ops = append(p.ops, op) }

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.record("navigate " + url)
	l := p.session.launcher
	if l.panicOn != "" && l.panicOn == url {
		panic("browser crashed")
	}
	if l.site != nil {
		if err, ok := l.site.fail[url]; ok {
			return err
		}
		if _, ok := l.site.pages[url]; !ok {
			return fmt.Errorf("%w: 404 for %s", repository.ErrNavigationFailed, url)
		}
	}
	p.current = url
	return nil
}

func (p *fakePage) Title(context.Context) (string, error) { return "", nil }

func (p *fakePage) HTML(context.Context) (string, error) {
	return p.session.launcher.site.pages[p.current], nil
}

func (p *fakePage) WaitVisible(_ context.Context, selector string) error {
	p.record("wait " + selector)
	if !p.session.launcher.visible[selector] {
		return repository.ErrSelectorTimeout
	}
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	if err := p.WaitVisible(ctx, selector); err != nil {
		return err
	}
	p.record("click " + selector)
	return nil
}

func (p *fakePage) Fill(ctx context.Context, selector, text string) error {
	if err := p.WaitVisible(ctx, selector); err != nil {
		return err
	}
	if p.filled == nil {
		p.filled = map[string]string{}
	}
	p.filled[selector] = text
	p.record("fill " + selector)
	return nil
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	if err := p.session.launcher.screenshotErr; err != nil {
		return nil, err
	}
	return []byte("png"), nil
}

func (p *fakePage) ConsoleLogs() []entity.ConsoleLog {
	return []entity.ConsoleLog{{Type: "error", Text: "Uncaught TypeError", Timestamp: time.Now()}}
}

func (p *fakePage) Close() error {
	p.closed++
	return nil
}

// --- ai ---

type fakeAI struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	prompts  []string
}

func (a *fakeAI) Complete(_ context.Context, _, user string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.prompts = append(a.prompts, user)
	return a.response, a.err
}

// --- artifacts ---

type fakeArtifacts struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (f *fakeArtifacts) Save(_ context.Context, runID, name string, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	ref := runID + "/" + name
	f.saved = append(f.saved, ref)
	return ref, nil
}

// --- store ---

type memStore struct {
	mu        sync.Mutex
	websites  map[string]*entity.Website
	pages     map[string]*entity.WebsitePage
	testCases map[string]*entity.TestCase
	runs      map[string]*entity.TestRun
	bugs      map[string]*entity.BugRecord // by test run id
	schedules map[string]*entity.Schedule
	jobs      map[string]*entity.Job
	queues    map[entity.JobKind][]string
	locks     map[string]string // key -> owner token
	pushErr   error
}

func newMemStore() *memStore {
	return &memStore{
		websites:  map[string]*entity.Website{},
		pages:     map[string]*entity.WebsitePage{},
		testCases: map[string]*entity.TestCase{},
		runs:      map[string]*entity.TestRun{},
		bugs:      map[string]*entity.BugRecord{},
		schedules: map[string]*entity.Schedule{},
		jobs:      map[string]*entity.Job{},
		queues:    map[entity.JobKind][]string{},
		locks:     map[string]string{},
	}
}

func (m *memStore) repos() Repositories {
	return Repositories{
		Websites:  memWebsites{m},
		Pages:     memPages{m},
		TestCases: memTestCases{m},
		TestRuns:  memRuns{m},
		Bugs:      memBugs{m},
		Schedules: memSchedules{m},
		Jobs:      memJobs{m},
		Queue:     memQueue{m},
		Locks:     memLocks{m},
	}
}

type memWebsites struct{ m *memStore }

func (r memWebsites) FindByID(_ context.Context, id string) (*entity.Website, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	w, ok := r.m.websites[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (r memWebsites) set(id string, f func(*entity.Website)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	w, ok := r.m.websites[id]
	if !ok {
		return repository.ErrNotFound
	}
	f(w)
	return nil
}

func (r memWebsites) MarkCrawling(_ context.Context, id string) error {
	return r.set(id, func(w *entity.Website) { w.Status = entity.WebsiteCrawling; w.LastError = "" })
}

func (r memWebsites) MarkCrawled(_ context.Context, id string, errs []string) error {
	return r.set(id, func(w *entity.Website) {
		now := time.Now()
		w.Status, w.LastCrawled, w.CrawlErrors = entity.WebsiteCompleted, &now, errs
	})
}

func (r memWebsites) MarkError(_ context.Context, id, reason string) error {
	return r.set(id, func(w *entity.Website) { w.Status, w.LastError = entity.WebsiteError, reason })
}

type memPages struct{ m *memStore }

func (r memPages) Save(_ context.Context, p *entity.WebsitePage) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.pages[p.ID] = p
	return nil
}

func (r memPages) ListByWebsite(_ context.Context, websiteID string) ([]*entity.WebsitePage, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*entity.WebsitePage
	for _, p := range r.m.pages {
		if p.WebsiteID == websiteID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (r memPages) CountByWebsite(ctx context.Context, websiteID string) (int, error) {
	pages, _ := r.ListByWebsite(ctx, websiteID)
	return len(pages), nil
}

type memTestCases struct{ m *memStore }

func (r memTestCases) Create(_ context.Context, tc *entity.TestCase) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.testCases[tc.ID] = tc
	return nil
}

func (r memTestCases) FindByID(_ context.Context, id string) (*entity.TestCase, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	tc, ok := r.m.testCases[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return tc, nil
}

type memRuns struct{ m *memStore }

func (r memRuns) Create(_ context.Context, run *entity.TestRun) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.runs[run.ID] = run
	return nil
}

func (r memRuns) FindByID(_ context.Context, id string) (*entity.TestRun, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	run, ok := r.m.runs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (r memRuns) move(id string, next entity.Status, f func(*entity.TestRun)) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	run, ok := r.m.runs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !run.Status.CanTransitionTo(next) {
		return repository.ErrInvalidTransition
	}
	run.Status = next
	f(run)
	return nil
}

func (r memRuns) MarkRunning(_ context.Context, id string) error {
	return r.move(id, entity.StatusRunning, func(run *entity.TestRun) { now := time.Now(); run.StartedAt = &now })
}

func (r memRuns) Complete(_ context.Context, id string, result *entity.TestRunResult) error {
	next := entity.StatusFailed
	if result.OverallPassed {
		next = entity.StatusCompleted
	}
	return r.move(id, next, func(run *entity.TestRun) {
		run.Result, run.DurationMs, run.Error = result, result.TotalDurationMs, result.Error
	})
}

func (r memRuns) Fail(_ context.Context, id, reason string) error {
	return r.move(id, entity.StatusFailed, func(run *entity.TestRun) { run.Error = reason })
}

type memBugs struct{ m *memStore }

// Create fails on a done context the way a database driver does.
func (r memBugs) Create(ctx context.Context, b *entity.BugRecord) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.bugs[b.RelatedTestRunID]; ok {
		return false, nil
	}
	r.m.bugs[b.RelatedTestRunID] = b
	return true, nil
}

func (r memBugs) FindByTestRun(_ context.Context, runID string) (*entity.BugRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	b, ok := r.m.bugs[runID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return b, nil
}

type memSchedules struct{ m *memStore }

func (r memSchedules) FindByID(_ context.Context, id string) (*entity.Schedule, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.schedules[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

func (r memSchedules) ListActive(context.Context) ([]*entity.Schedule, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*entity.Schedule
	for _, s := range r.m.schedules {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r memSchedules) MarkRun(_ context.Context, id string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	now := time.Now()
	r.m.schedules[id].LastRun = &now
	return nil
}

type memJobs struct{ m *memStore }

func (r memJobs) Create(_ context.Context, j *entity.Job) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.jobs[j.ID] = j
	return nil
}

func (r memJobs) FindByID(_ context.Context, id string) (*entity.Job, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	j, ok := r.m.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r memJobs) Transition(_ context.Context, id string, next entity.Status, errMsg string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	j, ok := r.m.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !j.Status.CanTransitionTo(next) {
		return repository.ErrInvalidTransition
	}
	j.Status, j.Error = next, errMsg
	return nil
}

type memQueue struct{ m *memStore }

func (q memQueue) Push(_ context.Context, kind entity.JobKind, id string) error {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	if q.m.pushErr != nil {
		return q.m.pushErr
	}
	q.m.queues[kind] = append(q.m.queues[kind], id)
	return nil
}

func (q memQueue) Pop(_ context.Context, _ time.Duration, kinds ...entity.JobKind) (entity.JobKind, string, error) {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	for _, k := range kinds {
		if ids := q.m.queues[k]; len(ids) > 0 {
			q.m.queues[k] = ids[1:]
			return k, ids[0], nil
		}
	}
	return "", "", repository.ErrQueueEmpty
}

func (q memQueue) Size(_ context.Context, kind entity.JobKind) (int64, error) {
	q.m.mu.Lock()
	defer q.m.mu.Unlock()
	return int64(len(q.m.queues[kind])), nil
}

type memLocks struct{ m *memStore }

func (l memLocks) Acquire(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if _, held := l.m.locks[key]; held {
		return false, nil
	}
	l.m.locks[key] = token
	return true, nil
}

func (l memLocks) Take(_ context.Context, key, token string, _ time.Duration) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	l.m.locks[key] = token
	return nil
}

func (l memLocks) Release(_ context.Context, key, token string) (bool, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if l.m.locks[key] != token {
		return false, nil
	}
	delete(l.m.locks, key)
	return true, nil
}

// page builds a minimal html document linking to hrefs.
func page(title string, hrefs ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><h1>%s</h1>", title, title)
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, h, h)
	}
	b.WriteString("</body></html>")
	return b.String()
}

var errBoom = errors.New("boom")
