package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/user/crawltest-service/internal/entity"
)

const testRunExistsSQL = `SELECT EXISTS (SELECT 1 FROM test_runs WHERE id = $1);`

// TestRunRepoImpl implements repository.TestRunRepository. Status updates are
// conditional on the stored status so a run never moves backwards.
type TestRunRepoImpl struct {
	db DBPool
}

func NewTestRunRepo(db DBPool) *TestRunRepoImpl {
	return &TestRunRepoImpl{db: db}
}

func (r *TestRunRepoImpl) Create(ctx context.Context, run *entity.TestRun) error {
	query := `
		INSERT INTO test_runs (id, test_case_id, website_id, user_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := r.db.Exec(ctx, query, run.ID, run.TestCaseID, run.WebsiteID, run.UserID, string(run.Status), run.CreatedAt)
	return err
}

func (r *TestRunRepoImpl) FindByID(ctx context.Context, id string) (*entity.TestRun, error) {
	query := `
		SELECT id, test_case_id, website_id, user_id, status, started_at, completed_at, duration_ms, result, COALESCE(error, ''), created_at
		FROM test_runs
		WHERE id = $1;
	`
	var (
		run    entity.TestRun
		status string
		result []byte
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.TestCaseID, &run.WebsiteID, &run.UserID, &status,
		&run.StartedAt, &run.CompletedAt, &run.DurationMs, &result, &run.Error, &run.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	run.Status = entity.Status(status)
	if len(result) > 0 {
		run.Result = &entity.TestRunResult{}
		if err := json.Unmarshal(result, run.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result of test run %s: %w", id, err)
		}
	}
	return &run, nil
}

func (r *TestRunRepoImpl) MarkRunning(ctx context.Context, id string) error {
	query := `UPDATE test_runs SET status = $2, started_at = $3 WHERE id = $1 AND status = ANY($4);`
	return r.move(ctx, id, query, string(entity.StatusRunning), time.Now().UTC(), allowedFrom(entity.StatusRunning))
}

func (r *TestRunRepoImpl) Complete(ctx context.Context, id string, result *entity.TestRunResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	next := entity.StatusFailed
	if result.OverallPassed {
		next = entity.StatusCompleted
	}
	query := `
		UPDATE test_runs
		SET status = $2, completed_at = $3, duration_ms = $4, result = $5, error = $6
		WHERE id = $1 AND status = ANY($7);
	`
	return r.move(ctx, id, query,
		string(next), time.Now().UTC(), result.TotalDurationMs, body, nullable(result.Error), allowedFrom(next))
}

func (r *TestRunRepoImpl) Fail(ctx context.Context, id, reason string) error {
	query := `UPDATE test_runs SET status = $2, completed_at = $3, error = $4 WHERE id = $1 AND status = ANY($5);`
	return r.move(ctx, id, query, string(entity.StatusFailed), time.Now().UTC(), reason, allowedFrom(entity.StatusFailed))
}

func (r *TestRunRepoImpl) move(ctx context.Context, id, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return transitionMiss(ctx, r.db, testRunExistsSQL, id)
	}
	return nil
}
