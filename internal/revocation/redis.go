package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPrefix = "revoked:"

// Redis shares revocations between processes. Keys expire with the token.
type Redis struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, now: time.Now}
}

func (r *Redis) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return true, nil
	}
	ok, err := r.rdb.SetNX(ctx, redisPrefix+tokenID, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (r *Redis) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, redisPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}
