package repository

import (
	"context"

	"github.com/user/crawltest-service/internal/entity"
)

type ScheduleRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Schedule, error)
	ListActive(ctx context.Context) ([]*entity.Schedule, error)
	MarkRun(ctx context.Context, id string) error
}
