package repository

import (
	"context"

	"github.com/user/crawltest-service/internal/entity"
)

type TestCaseRepository interface {
	Create(ctx context.Context, tc *entity.TestCase) error
	FindByID(ctx context.Context, id string) (*entity.TestCase, error)
}
