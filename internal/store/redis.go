package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is used for the schedule-event queue and the health probe, both
// off the booking hot path, so the timeouts stay deliberately short: a
// stalled redis must not stall a booking response.
const (
	redisDialTimeout = 2 * time.Second
	redisOpTimeout   = time.Second
)

// Redis wraps the shared client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisOpTimeout,
		WriteTimeout: redisOpTimeout,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}
