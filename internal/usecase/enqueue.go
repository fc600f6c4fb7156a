package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/crawltest-service/internal/entity"
	"github.com/user/crawltest-service/internal/repository"
)

const crawlLockPrefix = "crawl:lock:"

func crawlLockKey(websiteID string) string { return crawlLockPrefix + websiteID }

// releaseCrawlLock frees the website's crawl lock if token still holds it.
func releaseCrawlLock(ctx context.Context, locks repository.LockRepository, websiteID, token string, logger *zap.Logger) {
	released, err := locks.Release(ctx, crawlLockKey(websiteID), token)
	switch {
	case err != nil:
		logger.Warn("failed to release crawl lock", zap.String("website_id", websiteID), zap.Error(err))
	case !released:
		logger.Info("crawl lock is held by a newer crawl", zap.String("website_id", websiteID))
	}
}

// enqueuer writes a PENDING job row and then pushes its id to the kind's queue.
type enqueuer struct {
	jobRepo   repository.JobRepository
	runRepo   repository.TestRunRepository
	queueRepo repository.QueueRepository
	logger    *zap.Logger
}

func (e *enqueuer) enqueue(ctx context.Context, kind entity.JobKind, payload any) (*entity.Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	job := &entity.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   body,
		Status:    entity.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create %s job: %w", kind, err)
	}
	if err := e.queueRepo.Push(ctx, kind, job.ID); err != nil {
		if terr := e.jobRepo.Transition(context.WithoutCancel(ctx), job.ID, entity.StatusFailed, "failed to enqueue: "+err.Error()); terr != nil {
			e.logger.Error("failed to mark unqueued job as failed", zap.String("job_id", job.ID), zap.Error(terr))
		}
		return nil, fmt.Errorf("failed to push %s job: %w", kind, err)
	}
	e.logger.Info("job enqueued", zap.String("job_id", job.ID), zap.String("kind", string(kind)))
	return job, nil
}

// enqueueRun creates a PENDING test run for tc and the job that will execute it.
func (e *enqueuer) enqueueRun(ctx context.Context, tc *entity.TestCase, userID string) (string, error) {
	run := &entity.TestRun{
		ID:         uuid.NewString(),
		TestCaseID: tc.ID,
		WebsiteID:  tc.WebsiteID,
		UserID:     userID,
		Status:     entity.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.runRepo.Create(ctx, run); err != nil {
		return "", fmt.Errorf("failed to create test run: %w", err)
	}
	payload := entity.TestExecutionPayload{TestRunID: run.ID, TestCaseID: tc.ID, UserID: userID}
	if _, err := e.enqueue(ctx, entity.JobKindTestExecution, payload); err != nil {
		if ferr := e.runRepo.Fail(context.WithoutCancel(ctx), run.ID, err.Error()); ferr != nil {
			e.logger.Error("failed to mark unqueued run as failed", zap.String("test_run_id", run.ID), zap.Error(ferr))
		}
		return "", err
	}
	return run.ID, nil
}
