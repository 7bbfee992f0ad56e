package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard 同一动作在时间窗口内的防抖闸
//
// 扫码防重放用：同一张卡在冷却窗口内的第二次扫码会被拒绝，
// 窗口由 Redis 过期键承载。
type Guard interface {
	// Acquire 尝试占住 key 的冷却窗口；窗口已被占返回 false
	Acquire(ctx context.Context, key string) (bool, error)

	// Release 提前释放窗口，动作失败时调用，让重试立即可行
	Release(ctx context.Context, key string) error
}

type redisGuard struct {
	rdb    *redis.Client
	prefix string
	window time.Duration
}

// NewRedisGuard 创建 Redis 防抖闸
// window <= 0 表示防抖关闭，所有 Acquire 直接放行
func NewRedisGuard(rdb *redis.Client, prefix string, window time.Duration) Guard {
	return &redisGuard{rdb: rdb, prefix: prefix, window: window}
}

func (g *redisGuard) guardKey(key string) string {
	return fmt.Sprintf("%s:%s", g.prefix, key)
}

func (g *redisGuard) Acquire(ctx context.Context, key string) (bool, error) {
	if g.window <= 0 {
		return true, nil
	}

	ok, err := g.rdb.SetNX(ctx, g.guardKey(key), 1, g.window).Result()
	if err != nil {
		// Redis 故障不拦业务，错误交给调用方记日志
		return true, err
	}
	return ok, nil
}

func (g *redisGuard) Release(ctx context.Context, key string) error {
	if g.window <= 0 {
		return nil
	}
	return g.rdb.Del(ctx, g.guardKey(key)).Err()
}
