package redisqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/medqueue/core/queue"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a queue.Locker using SET NX PX.
type Locker struct {
	rdb redis.UniversalClient
}

// NewLocker returns a Locker using rdb.
func NewLocker(rdb redis.UniversalClient) *Locker {
	return &Locker{rdb: rdb}
}

func (l *Locker) Acquire(ctx context.Context, key string, lease, wait time.Duration) (queue.Lock, error) {
	token := uuid.NewString()
	err := queue.AcquireWithin(ctx, wait, func() (bool, error) {
		ok, err := l.rdb.SetNX(ctx, key, token, lease).Result()
		return ok, wrap(err)
	})
	if err != nil {
		return nil, err
	}
	return &lock{rdb: l.rdb, key: key, token: token}, nil
}

type lock struct {
	rdb   redis.UniversalClient
	key   string
	token string
}

func (l *lock) Key() string { return l.key }

// Release deletes the key only while it still holds our token.
func (l *lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Int()
	if err != nil {
		return wrap(err)
	}
	if n == 0 {
		return queue.ErrLockLost
	}
	return nil
}
