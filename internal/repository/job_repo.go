package repository

import (
	"context"

	"github.com/user/crawltest-service/internal/entity"
)

type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	FindByID(ctx context.Context, id string) (*entity.Job, error)
	// Transition moves the job to next if its stored status allows it and
	// returns ErrInvalidTransition otherwise. errMsg is stored for FAILED.
	Transition(ctx context.Context, id string, next entity.Status, errMsg string) error
}
