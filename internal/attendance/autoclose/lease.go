package autoclose

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultLeaseKey = "timeclock:autoclose:lease"

// RedisLease is a SET NX PX lock. Holders never release it; it lapses after
// ttl so the next tick on any replica can take it.
type RedisLease struct {
	client redis.Cmdable
	key    string
	owner  string
}

func NewRedisLease(client redis.Cmdable, key, owner string) *RedisLease {
	if key == "" {
		key = DefaultLeaseKey
	}
	return &RedisLease{client: client, key: key, owner: owner}
}

func (l *RedisLease) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := l.client.SetNX(ctx, l.key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	return ok, nil
}
