package distlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces run locks when Redis is shared with other jobs.
const redisKeyPrefix = "mailerlite-sync:lock:"

// ErrLockLost is returned by RedisLock.Release when the key no longer
// carries this run's owner token (TTL expired, or another run took it).
var ErrLockLost = errors.New("run lock expired before release")

// compare-and-delete on the owner token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("DEL", KEYS[1])
`)

// RedisLock is a TTL key holding the run's owner token.
type RedisLock struct {
	rdb   redis.UniversalClient
	key   string
	owner string
	ttl   time.Duration
}

// NewRedisLock prepares a lock on key; nothing is written until Acquire.
func NewRedisLock(rdb redis.UniversalClient, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		rdb:   rdb,
		key:   redisKeyPrefix + key,
		owner: uuid.NewString(),
		ttl:   ttl,
	}
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	err := l.rdb.SetArgs(ctx, l.key, l.owner, redis.SetArgs{Mode: "NX", TTL: l.ttl}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("redis lock %s: %w", l.key, err)
	}
	return true, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.owner).Int()
	if err != nil {
		return fmt.Errorf("redis unlock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}
