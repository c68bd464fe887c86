package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	e "repeatme/internal/core/domain/errors"
	"repeatme/internal/core/domain/logging"
	ratelimiter "repeatme/internal/core/domain/rate_limiter"
	"time"

	"github.com/redis/go-redis/v9"
)

const KEY_PREFIX = "rate_limit"

type Redis struct {
	redisClient redis.UniversalClient
	log         logging.Logger
	now         func() time.Time
}

func NewRedis(redisClient redis.UniversalClient, log logging.Logger, now func() time.Time) *Redis {
	if redisClient == nil {
		panic(e.NewNilArgumentError("redisClient"))
	}
	if log == nil {
		panic(e.NewNilArgumentError("log"))
	}
	if now == nil {
		panic(e.NewNilArgumentError("now"))
	}
	return &Redis{redisClient: redisClient, log: log, now: now}
}

// CheckLimit counts hits in fixed windows aligned to the interval. A
// counter expires together with its window. Redis errors never block the
// caller.
func (r *Redis) CheckLimit(ctx context.Context, key string, limit ratelimiter.Limit) ratelimiter.Result {
	now := r.now().UTC()
	interval := limit.Interval.Duration()
	windowStart := now.Truncate(interval)
	k := fmt.Sprintf("%s::%s::%d", KEY_PREFIX, key, windowStart.Unix())

	cmds, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, windowStart.Add(interval).Sub(now))
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return ratelimiter.NotAllowed()
	}
	if err != nil {
		r.log.Error(
			ctx,
			"Could not check rate limit due to Redis client error.",
			logging.Entry("key", key),
			logging.Entry("err", err),
		)
		return ratelimiter.Allowed()
	}
	hits := cmds[0].(*redis.IntCmd).Val()
	if hits > int64(limit.Value) {
		return ratelimiter.NotAllowed()
	}
	return ratelimiter.Allowed()
}

// AllowAlways never limits. It backs the test mode and deployments
// without Redis.
type AllowAlways struct{}

func NewAllowAlways() *AllowAlways {
	return &AllowAlways{}
}

func (AllowAlways) CheckLimit(ctx context.Context, key string, limit ratelimiter.Limit) ratelimiter.Result {
	return ratelimiter.Allowed()
}
