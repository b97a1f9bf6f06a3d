package rebuild

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lockKey = "addr:rebuild:lock"

func redisLocker(t *testing.T, ttl time.Duration) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	m := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return &Locker{Client: c, Key: lockKey, TTL: ttl, ReportKey: "addr:rebuild:last_report"}, m
}

func TestLocker_ExclusiveAndReleased(t *testing.T) {
	k, m := redisLocker(t, time.Minute)
	ctx := context.Background()

	err := k.WithLock(ctx, func(ctx context.Context) error {
		assert.True(t, m.Exists(lockKey))
		return k.WithLock(ctx, func(context.Context) error {
			t.Fatal("second holder must not run")
			return nil
		})
	})

	require.ErrorIs(t, err, ErrLocked)
	assert.False(t, m.Exists(lockKey))
}

func TestLocker_RenewsWhileRunning(t *testing.T) {
	k, m := redisLocker(t, 300*time.Millisecond)

	err := k.WithLock(context.Background(), func(context.Context) error {
		// 只剩 50ms；若未续期，再过 200ms 即过期
		m.FastForward(250 * time.Millisecond)
		time.Sleep(250 * time.Millisecond)
		m.FastForward(200 * time.Millisecond)
		assert.True(t, m.Exists(lockKey), "lock expired while the rebuild was still running")
		return nil
	})

	require.NoError(t, err)
	assert.False(t, m.Exists(lockKey))
}

func TestLocker_ReleaseKeepsForeignToken(t *testing.T) {
	k, m := redisLocker(t, time.Minute)

	err := k.WithLock(context.Background(), func(context.Context) error {
		// 锁已过期并被另一进程取得
		return m.Set(lockKey, "other-holder")
	})

	require.NoError(t, err)
	got, err := m.Get(lockKey)
	require.NoError(t, err)
	assert.Equal(t, "other-holder", got)
}

func TestLocker_ReportCache(t *testing.T) {
	k, _ := redisLocker(t, time.Minute)
	ctx := context.Background()

	b, err := k.LastReport(ctx)
	require.NoError(t, err)
	assert.Nil(t, b)

	require.NoError(t, k.SaveReport(ctx, &Report{RunID: "r-1", RowsWritten: 4}))
	b, err = k.LastReport(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"run_id":"r-1"`)
	assert.Contains(t, string(b), `"rows_written":4`)
}
