package lock

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// luaReleaseIfMatch deletes the key only while it still carries our token,
// so an expired holder cannot release a lock taken over by someone else.
const luaReleaseIfMatch = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

const (
	DefaultTTL  = 10 * time.Second
	defaultPoll = 20 * time.Millisecond
)

// Redis is a Locker shared by every process talking to the same Redis.
// The TTL bounds how long a crashed holder can block a key.
type Redis struct {
	rdb  rd.Cmdable
	wait time.Duration
	ttl  time.Duration
	poll time.Duration
}

func NewRedis(rdb rd.Cmdable, wait, ttl time.Duration) *Redis {
	if wait <= 0 {
		wait = DefaultWait
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{rdb: rdb, wait: wait, ttl: ttl, poll: defaultPoll}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(r.wait)

	for {
		ok, err := r.rdb.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: setnx %s: %w", key, err)
		}
		if ok {
			return func() { r.release(key, token) }, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrTimeout
		}
		delay := r.poll + time.Duration(rand.Int63n(int64(r.poll))) //nolint:gosec // jitter only
		if delay > remaining {
			delay = remaining
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (r *Redis) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// a failed release is recovered by the key TTL
	_ = r.rdb.Eval(ctx, luaReleaseIfMatch, []string{key}, token).Err()
}
