package repository

import (
	"context"

	"github.com/user/crawltest-service/internal/entity"
)

type BugRepository interface {
	// Create inserts the bug unless one already exists for its test run.
	// It reports whether a new record was written.
	Create(ctx context.Context, bug *entity.BugRecord) (bool, error)
	FindByTestRun(ctx context.Context, testRunID string) (*entity.BugRecord, error)
}
