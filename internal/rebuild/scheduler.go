package rebuild

import (
	"context"
	"time"

	"addr-hierarchy/internal/logger"
)

// NextRun：计算 now 之后第一个 weekday 的 hour:00（不含当前已过时的当周）
// 约束：基于 loc 时区与整点 hour；结果严格晚于 now
func NextRun(now time.Time, loc *time.Location, weekday time.Weekday, hour int) time.Time {
	now = now.In(loc)
	for i := 0; i <= 7; i++ {
		d := now.AddDate(0, 0, i)
		if d.Weekday() != weekday {
			continue
		}
		t := time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
		if t.After(now) {
			return t
		}
	}
	d := now.AddDate(0, 0, 7)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
}

// Scheduler：按周重建
// 背景：CBDB 源表定期更新，目标表随之整表重建；单次失败由日志记录，调度继续。
// 约束：Run 执行一次重建，通常为持锁的 Builder.Run
type Scheduler struct {
	Loc     *time.Location
	Weekday time.Weekday
	Hour    int
	Run     func(ctx context.Context) error

	now func() time.Time
}

// Start：阻塞直到 ctx 取消
func (s *Scheduler) Start(ctx context.Context) error {
	l := logger.L()
	clock := s.now
	if clock == nil {
		clock = time.Now
	}
	for {
		now := clock()
		next := NextRun(now, s.Loc, s.Weekday, s.Hour)
		l.Info("rebuild_scheduled", "next", next)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			l.Info("scheduler_stopped")
			return nil
		case <-timer.C:
		}
		if err := s.Run(ctx); err != nil {
			l.Error("scheduled_rebuild_error", "err", err)
		}
	}
}
