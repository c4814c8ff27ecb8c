package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
)

// ReleaseFunc gives a held lock back.
type ReleaseFunc func(ctx context.Context) error

// Locker grants exclusive ownership of a named lock.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (ReleaseFunc, error)
}

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX and a TTL.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker constructs a Redis backed locker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes the lock or returns ErrLocked when another owner holds it.
func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (ReleaseFunc, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive")
	}
	key := Key("lock", name)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrLocked, fmt.Sprintf("lock %s is held by another process", name))
	}

	return func(ctx context.Context) error {
		err := unlockScript.Run(ctx, l.client, []string{key}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}, nil
}
