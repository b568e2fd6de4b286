package limiter

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Redis is a fixed-window counter shared by every server instance pointing
// at the same Redis database.
type Redis struct {
	client *redis.Client
	prefix string
	max    int
	window time.Duration
}

func NewRedis(addr string, password string, db int, prefix string, max int, window time.Duration) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Redis{client: client, prefix: prefix, max: max, window: window}
}

func (l *Redis) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *Redis) Close() error {
	return l.client.Close()
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", l.prefix, key)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("limiter incr %s: %w", redisKey, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("limiter expire %s: %w", redisKey, err)
		}
	}
	return count <= int64(l.max), nil
}
