package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/crawltest-service/internal/entity"
	"github.com/user/crawltest-service/internal/repository"
	"github.com/user/crawltest-service/pkg/metrics"
)

// finalizeTimeout bounds status writes made after the job context may have expired.
const finalizeTimeout = 10 * time.Second

// reportTimeout bounds bug reporting, which includes the AI analysis, after
// the job context may have expired.
const reportTimeout = 2 * time.Minute

const scheduleUser = "system"

// Orchestrator consumes one job: it claims it, runs the handler for its kind
// and records the terminal status.
type Orchestrator interface {
	Handle(ctx context.Context, jobID string) error
}

type orchestratorUseCase struct {
	repos     Repositories
	launcher  repository.BrowserLauncher
	crawler   Crawler
	executor  StepExecutor
	generator TestCaseGenerator
	reporter  BugReporter
	enqueuer  *enqueuer
	validate  *validator.Validate
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// OrchestratorDeps are the collaborators of NewOrchestrator.
type OrchestratorDeps struct {
	Repos     Repositories
	Launcher  repository.BrowserLauncher
	Crawler   Crawler
	Executor  StepExecutor
	Generator TestCaseGenerator
	Reporter  BugReporter
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

func NewOrchestrator(d OrchestratorDeps) Orchestrator {
	logger := d.Logger.Named("orchestrator")
	return &orchestratorUseCase{
		repos:     d.Repos,
		launcher:  d.Launcher,
		crawler:   d.Crawler,
		executor:  d.Executor,
		generator: d.Generator,
		reporter:  d.Reporter,
		enqueuer:  &enqueuer{jobRepo: d.Repos.Jobs, runRepo: d.Repos.TestRuns, queueRepo: d.Repos.Queue, logger: logger},
		validate:  validator.New(),
		metrics:   d.Metrics,
		logger:    logger,
	}
}

// Handle returns nil for a job that another worker already claimed.
func (uc *orchestratorUseCase) Handle(ctx context.Context, jobID string) error {
	job, err := uc.repos.Jobs.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if err := uc.repos.Jobs.Transition(ctx, job.ID, entity.StatusRunning, ""); err != nil {
		uc.releaseUnclaimed(ctx, job, err)
		if errors.Is(err, repository.ErrInvalidTransition) {
			uc.logger.Warn("job is not pending, skipping", zap.String("job_id", job.ID), zap.String("status", string(job.Status)))
			return nil
		}
		return fmt.Errorf("failed to claim job %s: %w", job.ID, err)
	}

	log := uc.logger.With(zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))
	log.Info("job started")
	start := time.Now()

	runErr := uc.dispatch(ctx, job)

	status, msg := entity.StatusCompleted, ""
	if runErr != nil {
		status, msg = entity.StatusFailed, runErr.Error()
	}
	fctx, cancel := detached(ctx)
	defer cancel()
	if err := uc.repos.Jobs.Transition(fctx, job.ID, status, msg); err != nil {
		log.Error("failed to record job status", zap.String("status", string(status)), zap.Error(err))
	}
	uc.metrics.ObserveJob(string(job.Kind), string(status), time.Since(start))

	if runErr != nil {
		log.Error("job failed", zap.Error(runErr), zap.Duration("duration", time.Since(start)))
		return runErr
	}
	log.Info("job completed", zap.Duration("duration", time.Since(start)))
	return nil
}

// releaseUnclaimed frees the crawl lock of a crawl job this worker could not
// claim, unless the job is still running elsewhere.
func (uc *orchestratorUseCase) releaseUnclaimed(ctx context.Context, job *entity.Job, claimErr error) {
	if job.Kind != entity.JobKindCrawl {
		return
	}
	var p entity.CrawlPayload
	if err := uc.decode(job.Payload, &p); err != nil {
		return
	}
	fctx, cancel := detached(ctx)
	defer cancel()
	if errors.Is(claimErr, repository.ErrInvalidTransition) {
		current, err := uc.repos.Jobs.FindByID(fctx, job.ID)
		if err != nil || !current.Status.IsTerminal() {
			return
		}
	}
	releaseCrawlLock(fctx, uc.repos.Locks, p.WebsiteID, p.LockToken, uc.logger)
}

func (uc *orchestratorUseCase) dispatch(ctx context.Context, job *entity.Job) (err error) {
	defer uc.recoverAsError(&err)

	switch job.Kind {
	case entity.JobKindCrawl:
		var p entity.CrawlPayload
		if err := uc.decode(job.Payload, &p); err != nil {
			return err
		}
		return uc.handleCrawl(ctx, p)
	case entity.JobKindTestExecution:
		var p entity.TestExecutionPayload
		if err := uc.decode(job.Payload, &p); err != nil {
			return err
		}
		return uc.handleTestExecution(ctx, p)
	case entity.JobKindScheduleDispatch:
		var p entity.ScheduleDispatchPayload
		if err := uc.decode(job.Payload, &p); err != nil {
			return err
		}
		return uc.handleScheduleDispatch(ctx, p)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownJobKind, job.Kind)
	}
}

func (uc *orchestratorUseCase) decode(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}
	if err := uc.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}
	return nil
}

func (uc *orchestratorUseCase) recoverAsError(err *error) {
	if r := recover(); r != nil {
		uc.logger.Error("job handler panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		*err = fmt.Errorf("job handler panicked: %v", r)
	}
}

func (uc *orchestratorUseCase) handleCrawl(ctx context.Context, p entity.CrawlPayload) (err error) {
	defer func() {
		fctx, cancel := detached(ctx)
		defer cancel()
		releaseCrawlLock(fctx, uc.repos.Locks, p.WebsiteID, p.LockToken, uc.logger)
	}()

	website, err := uc.repos.Websites.FindByID(ctx, p.WebsiteID)
	if err != nil {
		return fmt.Errorf("failed to load website %s: %w", p.WebsiteID, err)
	}

	defer func() {
		if err == nil {
			return
		}
		fctx, cancel := detached(ctx)
		defer cancel()
		if merr := uc.repos.Websites.MarkError(fctx, website.ID, err.Error()); merr != nil {
			uc.logger.Error("failed to mark website as errored", zap.String("website_id", website.ID), zap.Error(merr))
		}
	}()
	defer uc.recoverAsError(&err)

	if err := uc.repos.Websites.MarkCrawling(ctx, website.ID); err != nil {
		return fmt.Errorf("failed to mark website crawling: %w", err)
	}

	session, err := uc.launcher.Launch(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", repository.ErrBrowserLaunch, err)
	}
	defer session.Close()

	result, err := uc.crawler.Crawl(ctx, session, website.Target())
	if err != nil {
		return err
	}

	created := 0
	for i := range result.Pages {
		page := &entity.WebsitePage{
			ID:         uuid.NewString(),
			WebsiteID:  website.ID,
			CreatedAt:  time.Now().UTC(),
			PageRecord: result.Pages[i],
		}
		if err := uc.repos.Pages.Save(ctx, page); err != nil {
			return fmt.Errorf("failed to save page %s: %w", page.URL, err)
		}

		sequences, source := uc.generator.GenerateSteps(ctx, page.Content, page.URL)
		label := page.Title
		if label == "" {
			label = page.URL
		}
		for j, steps := range sequences {
			tc := newTestCase(website.ID,
				fmt.Sprintf("Test Case %d for %s", j+1, label),
				fmt.Sprintf("Auto-generated test case for %s", page.URL),
				entity.PriorityMedium, []string{"auto-generated"}, steps, source)
			tc.PageID = page.ID
			if err := uc.repos.TestCases.Create(ctx, tc); err != nil {
				return fmt.Errorf("failed to save test case for %s: %w", page.URL, err)
			}
			created++
		}
	}

	if err := uc.repos.Websites.MarkCrawled(ctx, website.ID, result.Errors); err != nil {
		return fmt.Errorf("failed to mark website crawled: %w", err)
	}
	uc.logger.Info("website crawled",
		zap.String("website_id", website.ID),
		zap.Int("pages", len(result.Pages)),
		zap.Int("test_cases", created),
		zap.Int("page_errors", len(result.Errors)),
	)
	return nil
}

// handleTestExecution leaves the run COMPLETED or FAILED on every path, including panics.
func (uc *orchestratorUseCase) handleTestExecution(ctx context.Context, p entity.TestExecutionPayload) (err error) {
	claimed := false
	defer func() {
		if err == nil || !claimed {
			return
		}
		fctx, cancel := detached(ctx)
		defer cancel()
		if ferr := uc.repos.TestRuns.Fail(fctx, p.TestRunID, err.Error()); ferr != nil && !errors.Is(ferr, repository.ErrInvalidTransition) {
			uc.logger.Error("failed to mark test run as failed", zap.String("test_run_id", p.TestRunID), zap.Error(ferr))
		}
	}()
	defer uc.recoverAsError(&err)

	if err := uc.repos.TestRuns.MarkRunning(ctx, p.TestRunID); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			uc.logger.Warn("test run is not pending, skipping", zap.String("test_run_id", p.TestRunID))
			return nil
		}
		return fmt.Errorf("failed to mark test run running: %w", err)
	}
	claimed = true

	run, err := uc.repos.TestRuns.FindByID(ctx, p.TestRunID)
	if err != nil {
		return fmt.Errorf("failed to load test run: %w", err)
	}
	tc, err := uc.repos.TestCases.FindByID(ctx, p.TestCaseID)
	if err != nil {
		return fmt.Errorf("failed to load test case %s: %w", p.TestCaseID, err)
	}

	session, err := uc.launcher.Launch(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", repository.ErrBrowserLaunch, err)
	}
	defer session.Close()

	result := uc.executor.Run(ctx, session, run.ID, tc)

	fctx, cancel := detached(ctx)
	defer cancel()
	if err := uc.repos.TestRuns.Complete(fctx, run.ID, result); err != nil {
		return fmt.Errorf("failed to save test run result: %w", err)
	}
	uc.logger.Info("test run finished",
		zap.String("test_run_id", run.ID),
		zap.Bool("passed", result.OverallPassed),
		zap.Int("steps", len(result.Steps)),
	)

	if !result.OverallPassed {
		rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
		defer rcancel()
		if _, err := uc.reporter.Report(rctx, run, tc, result); err != nil {
			return fmt.Errorf("failed to report bug: %w", err)
		}
	}
	return nil
}

func (uc *orchestratorUseCase) handleScheduleDispatch(ctx context.Context, p entity.ScheduleDispatchPayload) error {
	schedule, err := uc.repos.Schedules.FindByID(ctx, p.ScheduleID)
	if errors.Is(err, repository.ErrNotFound) {
		uc.logger.Info("schedule not found, nothing to dispatch", zap.String("schedule_id", p.ScheduleID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load schedule: %w", err)
	}
	if !schedule.IsActive {
		uc.logger.Info("schedule inactive, nothing to dispatch", zap.String("schedule_id", schedule.ID))
		return nil
	}

	dispatched := 0
	for _, tcID := range schedule.TestCaseIDs {
		tc, err := uc.repos.TestCases.FindByID(ctx, tcID)
		if errors.Is(err, repository.ErrNotFound) {
			uc.logger.Warn("scheduled test case no longer exists", zap.String("schedule_id", schedule.ID), zap.String("test_case_id", tcID))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load test case %s: %w", tcID, err)
		}
		if _, err := uc.enqueuer.enqueueRun(ctx, tc, scheduleUser); err != nil {
			return err
		}
		dispatched++
	}

	if err := uc.repos.Schedules.MarkRun(ctx, schedule.ID); err != nil {
		return fmt.Errorf("failed to update schedule last run: %w", err)
	}
	uc.logger.Info("schedule dispatched", zap.String("schedule_id", schedule.ID), zap.Int("runs", dispatched))
	return nil
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
}
