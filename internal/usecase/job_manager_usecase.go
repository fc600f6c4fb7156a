package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/crawltest-service/internal/entity"
	"github.com/user/crawltest-service/internal/repository"
)

// JobManager is the enqueue and status side used by the HTTP layer. Every
// enqueue returns as soon as the job is queued.
type JobManager interface {
	EnqueueCrawl(ctx context.Context, websiteID string, force bool) (string, error)
	EnqueueTestExecution(ctx context.Context, testCaseIDs []string, userID string) ([]string, error)
	EnqueueScheduleDispatch(ctx context.Context, scheduleID string) (string, error)
	GenerateTests(ctx context.Context, websiteID string) ([]*entity.TestCase, entity.Source, error)
	GetJob(ctx context.Context, id string) (*entity.Job, error)
	GetWebsiteStatus(ctx context.Context, websiteID string) (*entity.WebsiteStatusView, error)
	GetTestRun(ctx context.Context, id string) (*entity.TestRun, error)
}

// Repositories bundles the stores the use cases read and write.
type Repositories struct {
	Websites  repository.WebsiteRepository
	Pages     repository.PageRepository
	TestCases repository.TestCaseRepository
	TestRuns  repository.TestRunRepository
	Bugs      repository.BugRepository
	Schedules repository.ScheduleRepository
	Jobs      repository.JobRepository
	Queue     repository.QueueRepository
	Locks     repository.LockRepository
}

type jobManagerUseCase struct {
	repos     Repositories
	generator TestCaseGenerator
	lockTTL   time.Duration
	enqueuer  *enqueuer
	logger    *zap.Logger
}

// NewJobManager creates a JobManager. lockTTL bounds how long a crawl lock
// survives a worker that died without releasing it.
func NewJobManager(repos Repositories, generator TestCaseGenerator, lockTTL time.Duration, logger *zap.Logger) JobManager {
	logger = logger.Named("job_manager")
	return &jobManagerUseCase{
		repos:     repos,
		generator: generator,
		lockTTL:   lockTTL,
		enqueuer:  &enqueuer{jobRepo: repos.Jobs, runRepo: repos.TestRuns, queueRepo: repos.Queue, logger: logger},
		logger:    logger,
	}
}

func (uc *jobManagerUseCase) EnqueueCrawl(ctx context.Context, websiteID string, force bool) (string, error) {
	if _, err := uc.repos.Websites.FindByID(ctx, websiteID); err != nil {
		return "", err
	}

	key, token := crawlLockKey(websiteID), uuid.NewString()
	if force {
		// A forced crawl takes the lock over; the superseded crawl can no longer release it.
		if err := uc.repos.Locks.Take(ctx, key, token, uc.lockTTL); err != nil {
			return "", fmt.Errorf("failed to take crawl lock: %w", err)
		}
	} else {
		acquired, err := uc.repos.Locks.Acquire(ctx, key, token, uc.lockTTL)
		if err != nil {
			return "", fmt.Errorf("failed to acquire crawl lock: %w", err)
		}
		if !acquired {
			return "", ErrCrawlInProgress
		}
	}

	job, err := uc.enqueuer.enqueue(ctx, entity.JobKindCrawl, entity.CrawlPayload{WebsiteID: websiteID, LockToken: token})
	if err != nil {
		releaseCrawlLock(context.WithoutCancel(ctx), uc.repos.Locks, websiteID, token, uc.logger)
		return "", err
	}
	return job.ID, nil
}

func (uc *jobManagerUseCase) EnqueueTestExecution(ctx context.Context, testCaseIDs []string, userID string) ([]string, error) {
	if len(testCaseIDs) == 0 {
		return nil, ErrNoTestCases
	}

	cases := make([]*entity.TestCase, 0, len(testCaseIDs))
	for _, id := range testCaseIDs {
		tc, err := uc.repos.TestCases.FindByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("test case %s: %w", id, err)
		}
		cases = append(cases, tc)
	}

	runIDs := make([]string, 0, len(cases))
	for _, tc := range cases {
		runID, err := uc.enqueuer.enqueueRun(ctx, tc, userID)
		if err != nil {
			return runIDs, err
		}
		runIDs = append(runIDs, runID)
	}
	return runIDs, nil
}

func (uc *jobManagerUseCase) EnqueueScheduleDispatch(ctx context.Context, scheduleID string) (string, error) {
	job, err := uc.enqueuer.enqueue(ctx, entity.JobKindScheduleDispatch, entity.ScheduleDispatchPayload{ScheduleID: scheduleID})
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

// GenerateTests builds test cases for the whole website from its crawled pages and stores them.
func (uc *jobManagerUseCase) GenerateTests(ctx context.Context, websiteID string) ([]*entity.TestCase, entity.Source, error) {
	website, err := uc.repos.Websites.FindByID(ctx, websiteID)
	if err != nil {
		return nil, "", err
	}
	pages, err := uc.repos.Pages.ListByWebsite(ctx, websiteID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list pages: %w", err)
	}

	cases, source := uc.generator.GenerateForWebsite(ctx, website, pages)
	for _, tc := range cases {
		if tc.ID == "" {
			tc.ID = uuid.NewString()
		}
		if err := uc.repos.TestCases.Create(ctx, tc); err != nil {
			return nil, "", fmt.Errorf("failed to save test case %q: %w", tc.Name, err)
		}
	}
	uc.logger.Info("test cases generated",
		zap.String("website_id", websiteID),
		zap.Int("count", len(cases)),
		zap.String("source", string(source)),
	)
	return cases, source, nil
}

func (uc *jobManagerUseCase) GetJob(ctx context.Context, id string) (*entity.Job, error) {
	return uc.repos.Jobs.FindByID(ctx, id)
}

func (uc *jobManagerUseCase) GetWebsiteStatus(ctx context.Context, websiteID string) (*entity.WebsiteStatusView, error) {
	website, err := uc.repos.Websites.FindByID(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	count, err := uc.repos.Pages.CountByWebsite(ctx, websiteID)
	if err != nil {
		return nil, fmt.Errorf("failed to count pages: %w", err)
	}
	return &entity.WebsiteStatusView{Website: website, PagesFound: count}, nil
}

func (uc *jobManagerUseCase) GetTestRun(ctx context.Context, id string) (*entity.TestRun, error) {
	return uc.repos.TestRuns.FindByID(ctx, id)
}
