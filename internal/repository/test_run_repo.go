package repository

import (
	"context"

	"github.com/user/crawltest-service/internal/entity"
)

// TestRunRepository persists runs. Status changes return ErrInvalidTransition when
// the stored status does not allow the move.
type TestRunRepository interface {
	Create(ctx context.Context, run *entity.TestRun) error
	FindByID(ctx context.Context, id string) (*entity.TestRun, error)
	MarkRunning(ctx context.Context, id string) error
	// Complete stores the result and sets COMPLETED or FAILED from result.OverallPassed.
	Complete(ctx context.Context, id string, result *entity.TestRunResult) error
	Fail(ctx context.Context, id string, reason string) error
}
