package utils

import (
	"addr-hierarchy/internal/config"
	"addr-hierarchy/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis：按配置打开 Redis 客户端
// 约束：未配置地址时返回 nil，调用方据此跳过加锁与报告缓存
func OpenRedis(c config.Redis) *redis.Client {
	if c.Addr == "" {
		return nil
	}
	logger.L().Debug("redis_open", "addr", c.Addr, "db", c.DB)
	return redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
}
