package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/crawltest-service/internal/entity"
	"github.com/user/crawltest-service/internal/repository"
	"github.com/user/crawltest-service/pkg/utils"
)

func TestQueuePush(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewQueueRepo(db)

	mock.ExpectLPush("qa:jobs:crawl", "job-1").SetVal(1)
	require.NoError(t, repo.Push(context.Background(), entity.JobKindCrawl, "job-1"))

	mock.ExpectLLen("qa:jobs:crawl").SetVal(1)
	n, err := repo.Size(context.Background(), entity.JobKindCrawl)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueuePopBlocking(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewQueueRepo(db)
	ctx := context.Background()

	mock.ExpectBRPop(2*time.Second, "qa:jobs:test-execution", "qa:jobs:crawl").
		SetVal([]string{"qa:jobs:crawl", "job-9"})
	kind, id, err := repo.Pop(ctx, 2*time.Second, entity.JobKindTestExecution, entity.JobKindCrawl)
	require.NoError(t, err)
	assert.Equal(t, entity.JobKindCrawl, kind)
	assert.Equal(t, "job-9", id)

	mock.ExpectBRPop(2*time.Second, "qa:jobs:crawl").RedisNil()
	_, _, err = repo.Pop(ctx, 2*time.Second, entity.JobKindCrawl)
	assert.ErrorIs(t, err, repository.ErrQueueEmpty)

	boom := errors.New("connection reset")
	mock.ExpectBRPop(2*time.Second, "qa:jobs:crawl").SetErr(boom)
	_, _, err = repo.Pop(ctx, 2*time.Second, entity.JobKindCrawl)
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueuePopNonBlockingHonoursOrder(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewQueueRepo(db)

	mock.ExpectRPop("qa:jobs:test-execution").RedisNil()
	mock.ExpectRPop("qa:jobs:crawl").SetVal("job-2")
	kind, id, err := repo.Pop(context.Background(), 0, entity.JobKindTestExecution, entity.JobKindCrawl)
	require.NoError(t, err)
	assert.Equal(t, entity.JobKindCrawl, kind)
	assert.Equal(t, "job-2", id)

	mock.ExpectRPop("qa:jobs:crawl").RedisNil()
	_, _, err = repo.Pop(context.Background(), 0, entity.JobKindCrawl)
	assert.ErrorIs(t, err, repository.ErrQueueEmpty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	repo := NewLockRepo(db)
	ctx := context.Background()
	key := "qa:lock:" + utils.HashURL("crawl:lock:w1")

	mock.ExpectSetNX(key, "tok-1", time.Minute).SetVal(true)
	ok, err := repo.Acquire(ctx, "crawl:lock:w1", "tok-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectSetNX(key, "tok-2", time.Minute).SetVal(false)
	ok, err = repo.Acquire(ctx, "crawl:lock:w1", "tok-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectSet(key, "tok-2", time.Minute).SetVal("OK")
	require.NoError(t, repo.Take(ctx, "crawl:lock:w1", "tok-2", time.Minute))

	// the superseded owner cannot free the new owner's lock
	mock.ExpectEvalSha(releaseScript.Hash(), []string{key}, "tok-1").SetVal(int64(0))
	released, err := repo.Release(ctx, "crawl:lock:w1", "tok-1")
	require.NoError(t, err)
	assert.False(t, released)

	mock.ExpectEvalSha(releaseScript.Hash(), []string{key}, "tok-2").SetVal(int64(1))
	released, err = repo.Release(ctx, "crawl:lock:w1", "tok-2")
	require.NoError(t, err)
	assert.True(t, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}
