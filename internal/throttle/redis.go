package throttle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter counts requests in fixed windows shared by every process.
type RedisLimiter struct {
	rdb  *redis.Client
	name string
	rule Rule
	now  func() time.Time
}

func NewRedisLimiter(rdb *redis.Client, name string, r Rule) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, name: name, rule: r, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	slot := l.now().UnixNano() / int64(l.rule.Window)
	k := "throttle:" + l.name + ":" + key + ":" + strconv.FormatInt(slot, 10)

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, l.rule.Window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis throttle: %w", err)
	}
	return incr.Val() <= int64(l.rule.Requests), nil
}
