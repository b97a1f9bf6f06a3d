package rebuild

import (
	"context"
	"time"

	"addr-hierarchy/internal/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ErrLocked 另一个进程正在重建
var ErrLocked = errors.New("rebuild already running")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Locker：基于 Redis 的互斥，防止两个调度进程同时替换目标表
// 约束：Client 为 nil 时所有操作为空操作
type Locker struct {
	Client    *redis.Client
	Key       string
	TTL       time.Duration
	ReportKey string
}

// WithLock：持锁执行 fn；锁被占用返回 ErrLocked
// 背景：fn 运行期间每 TTL/3 续期一次，重建耗时超过 TTL 也不会失去互斥；释放时只删除自己持有的 token。
func (k *Locker) WithLock(ctx context.Context, fn func(context.Context) error) error {
	if k == nil || k.Client == nil {
		return fn(ctx)
	}
	token := uuid.NewString()
	ok, err := k.Client.SetNX(ctx, k.Key, token, k.TTL).Result()
	if err != nil {
		return &StageError{Stage: StageLock, Err: errors.Wrap(err, "acquire rebuild lock")}
	}
	if !ok {
		return ErrLocked
	}
	logger.L().Debug("rebuild_lock_acquired", "key", k.Key, "ttl", k.TTL.String())
	defer k.release(token)
	if k.TTL > 0 {
		kctx, stop := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			k.keepAlive(kctx, token)
		}()
		defer func() {
			stop()
			<-done
		}()
	}
	return fn(ctx)
}

// keepAlive：定期延长锁的过期时间，直到 ctx 取消或锁已不属于自己
func (k *Locker) keepAlive(ctx context.Context, token string) {
	tick := time.NewTicker(k.TTL / 3)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		n, err := extendScript.Run(ctx, k.Client, []string{k.Key}, token, k.TTL.Milliseconds()).Int()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.L().Warn("rebuild_lock_extend_error", "err", err)
			continue
		}
		if n == 0 {
			logger.L().Error("rebuild_lock_lost", "key", k.Key)
			return
		}
	}
}

// release：调用方 ctx 可能已取消，释放使用独立的短超时
func (k *Locker) release(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, k.Client, []string{k.Key}, token).Err(); err != nil && err != redis.Nil {
		logger.L().Warn("rebuild_lock_release_error", "err", err)
	}
}

// SaveReport：缓存最近一次报告，供运维查看
func (k *Locker) SaveReport(ctx context.Context, rep *Report) error {
	if k == nil || k.Client == nil || k.ReportKey == "" || rep == nil {
		return nil
	}
	b, err := rep.JSON()
	if err != nil {
		return errors.Wrap(err, "encode report")
	}
	return errors.Wrap(k.Client.Set(ctx, k.ReportKey, b, 0).Err(), "cache report")
}

// LastReport：读取缓存的报告；未缓存时返回 nil
func (k *Locker) LastReport(ctx context.Context) ([]byte, error) {
	if k == nil || k.Client == nil || k.ReportKey == "" {
		return nil, nil
	}
	b, err := k.Client.Get(ctx, k.ReportKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return b, errors.Wrap(err, "read cached report")
}
