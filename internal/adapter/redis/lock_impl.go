package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/crawltest-service/pkg/utils"
)

const lockPrefix = "qa:lock:"

// releaseScript deletes the lock only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockRepoImpl implements expiring, token-owned locks with SET NX.
type LockRepoImpl struct {
	client redis.Cmdable
}

func NewLockRepo(client redis.Cmdable) *LockRepoImpl {
	return &LockRepoImpl{client: client}
}

// generateKey hashes the caller's key so arbitrary ids map to fixed-size Redis keys.
func (r *LockRepoImpl) generateKey(key string) string {
	return fmt.Sprintf("%s%s", lockPrefix, utils.HashURL(key))
}

func (r *LockRepoImpl) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.generateKey(key), token, ttl).Result()
}

func (r *LockRepoImpl) Take(ctx context.Context, key, token string, ttl time.Duration) error {
	return r.client.Set(ctx, r.generateKey(key), token, ttl).Err()
}

func (r *LockRepoImpl) Release(ctx context.Context, key, token string) (bool, error) {
	n, err := releaseScript.Run(ctx, r.client, []string{r.generateKey(key)}, token).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
