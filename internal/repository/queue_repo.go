package repository

import (
	"context"
	"time"

	"github.com/user/crawltest-service/internal/entity"
)

// QueueRepository is a FIFO of job ids per job kind.
type QueueRepository interface {
	// Push appends the job id to the queue for kind.
	Push(ctx context.Context, kind entity.JobKind, jobID string) error
	// Pop blocks up to timeout for a job id from any of kinds, checked in order.
	// It returns ErrQueueEmpty when nothing arrived.
	Pop(ctx context.Context, timeout time.Duration, kinds ...entity.JobKind) (entity.JobKind, string, error)
	// Size returns the number of queued ids for kind.
	Size(ctx context.Context, kind entity.JobKind) (int64, error)
}
