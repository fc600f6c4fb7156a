package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/crawltest-service/internal/entity"
	"github.com/user/crawltest-service/internal/repository"
)

const jobQueuePrefix = "qa:jobs:"

// QueueRepoImpl keeps one Redis list per job kind.
type QueueRepoImpl struct {
	client redis.Cmdable
}

// NewQueueRepo creates a new instance of QueueRepoImpl.
func NewQueueRepo(client redis.Cmdable) *QueueRepoImpl {
	return &QueueRepoImpl{client: client}
}

func queueKey(kind entity.JobKind) string { return jobQueuePrefix + string(kind) }

// Push adds a job id to the left side of the kind's list.
func (r *QueueRepoImpl) Push(ctx context.Context, kind entity.JobKind, jobID string) error {
	return r.client.LPush(ctx, queueKey(kind), jobID).Err()
}

// Pop takes from the right side of the first non-empty list in kinds order.
// A non-positive timeout polls once without blocking.
func (r *QueueRepoImpl) Pop(ctx context.Context, timeout time.Duration, kinds ...entity.JobKind) (entity.JobKind, string, error) {
	if len(kinds) == 0 {
		return "", "", repository.ErrQueueEmpty
	}
	if timeout <= 0 {
		for _, kind := range kinds {
			id, err := r.client.RPop(ctx, queueKey(kind)).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return "", "", err
			}
			return kind, id, nil
		}
		return "", "", repository.ErrQueueEmpty
	}

	keys := make([]string, len(kinds))
	for i, kind := range kinds {
		keys[i] = queueKey(kind)
	}
	res, err := r.client.BRPop(ctx, timeout, keys...).Result()
	if errors.Is(err, redis.Nil) {
		return "", "", repository.ErrQueueEmpty
	}
	if err != nil {
		return "", "", err
	}
	if len(res) != 2 {
		return "", "", fmt.Errorf("unexpected BRPOP reply: %v", res)
	}
	for _, kind := range kinds {
		if queueKey(kind) == res[0] {
			return kind, res[1], nil
		}
	}
	return "", "", fmt.Errorf("BRPOP returned unknown queue %q", res[0])
}

// Size returns the current number of items in the kind's queue.
func (r *QueueRepoImpl) Size(ctx context.Context, kind entity.JobKind) (int64, error) {
	return r.client.LLen(ctx, queueKey(kind)).Result()
}
