package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisTracker shares presence between instances. Each subject has a
// viewers and a typers sorted set scored by last heartbeat in unix millis.
type RedisTracker struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

var _ Tracker = (*RedisTracker)(nil)

func NewRedisTracker(rdb redis.UniversalClient, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisTracker{rdb: rdb, ttl: ttl, prefix: "presence"}
}

func (r *RedisTracker) keys(subject string) (viewers, typers string) {
	return fmt.Sprintf("%s:%s:viewers", r.prefix, subject), fmt.Sprintf("%s:%s:typers", r.prefix, subject)
}

func (r *RedisTracker) Heartbeat(ctx context.Context, subject, identity string, typing bool, now time.Time) error {
	viewers, typers := r.keys(subject)
	score := float64(now.UnixMilli())
	stale := strconv.FormatInt(now.Add(-r.ttl).UnixMilli(), 10)

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, viewers, &redis.Z{Score: score, Member: identity})
		if typing {
			pipe.ZAdd(ctx, typers, &redis.Z{Score: score, Member: identity})
		} else {
			pipe.ZRem(ctx, typers, identity)
		}
		pipe.ZRemRangeByScore(ctx, viewers, "-inf", stale)
		pipe.ZRemRangeByScore(ctx, typers, "-inf", stale)
		pipe.Expire(ctx, viewers, 2*r.ttl)
		pipe.Expire(ctx, typers, 2*r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("presence heartbeat: %w", err)
	}
	return nil
}

func (r *RedisTracker) Counts(ctx context.Context, subject string, now time.Time) (Counts, error) {
	viewers, typers := r.keys(subject)
	floor := "(" + strconv.FormatInt(now.Add(-r.ttl).UnixMilli(), 10)

	pipe := r.rdb.Pipeline()
	v := pipe.ZCount(ctx, viewers, floor, "+inf")
	t := pipe.ZCount(ctx, typers, floor, "+inf")
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Counts{}, fmt.Errorf("presence counts: %w", err)
	}
	return Counts{Viewers: int(v.Val()), Typers: int(t.Val())}, nil
}
