package jobs

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const counterKey = "stats:lifetime_optimizations"

// RedisCounter はプロセス横断のLifetimeCounterです。分散モードでは
// ワーカーとAPIが別プロセスのため、完了回数を Redis で共有します。
type RedisCounter struct {
	rdb *redis.Client
}

// NewRedisCounter はカウンターを作成します。
func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

// Increment はカウンターを1増やし、増加後の値を返します。
func (c *RedisCounter) Increment(ctx context.Context) (int64, error) {
	return c.rdb.Incr(ctx, counterKey).Result()
}

// Value は現在値を返します。未設定の場合は0です。
func (c *RedisCounter) Value(ctx context.Context) (int64, error) {
	value, err := c.rdb.Get(ctx, counterKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return value, err
}
