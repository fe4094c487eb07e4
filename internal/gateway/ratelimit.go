package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrRateLimited = errors.New("gateway: message rate exceeded")

// RateLimiter caps how many messages a user may send per window,
// counted in redis so the cap holds across gateway instances.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

// NewRateLimiter builds a limiter. A nil redis client or a non-positive
// limit disables limiting.
func NewRateLimiter(rdb *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  rdb,
		limit:  limit,
		window: window,
	}
}

// CheckSend counts one send attempt for the user. Redis outages fail
// open: limiting is protection, not authorization.
func (r *RateLimiter) CheckSend(ctx context.Context, userID uuid.UUID) error {
	if r.redis == nil || r.limit <= 0 {
		return nil
	}

	key := fmt.Sprintf("send_attempts:%s", userID)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return nil
	}

	if count == 1 {
		r.redis.Expire(ctx, key, r.window)
	}

	if count > int64(r.limit) {
		return ErrRateLimited
	}

	return nil
}
