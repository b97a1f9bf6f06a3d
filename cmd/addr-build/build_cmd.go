package main

import (
	"context"
	"log/slog"

	"addr-hierarchy/internal/config"
	"addr-hierarchy/internal/metrics"
	"addr-hierarchy/internal/rebuild"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type buildOptions struct {
	workers int
	explain []int64
	noLock  bool
	noPush  bool
}

func newBuildCmd(g *globalOptions) *cobra.Command {
	var opts buildOptions
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run one full rebuild of ADDRESSES",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.workers < 0 {
				return withCode(exitUsage, errors.Errorf("invalid --workers %d", opts.workers))
			}
			cfg, l, err := g.setup()
			if err != nil {
				return err
			}
			if opts.workers > 0 {
				cfg.Rebuild.Workers = opts.workers
			}
			_, err = runBuild(cmd.Context(), cfg, l, opts)
			return err
		},
	}
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Segmentation workers (overrides SEGMENT_WORKERS)")
	cmd.Flags().Int64SliceVar(&opts.explain, "explain", nil, "Log the segments of these place ids after segmentation")
	cmd.Flags().BoolVar(&opts.noLock, "no-lock", false, "Skip the Redis rebuild lock")
	cmd.Flags().BoolVar(&opts.noPush, "no-push", false, "Skip the Pushgateway push")
	return cmd
}

// runBuild：打开数据库，持锁执行一次重建，随后导出指标并缓存报告
// 约束：指标推送与报告缓存失败只记录日志，不改变退出码
func runBuild(ctx context.Context, cfg *config.Config, l *slog.Logger, opts buildOptions) (*rebuild.Report, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	var locker *rebuild.Locker
	if !opts.noLock {
		locker = newLocker(cfg)
		if locker != nil {
			defer locker.Client.Close()
		}
	}
	b := &rebuild.Builder{
		Source:  st,
		Sink:    st,
		Workers: cfg.Rebuild.Workers,
		Log:     l,
		Explain: opts.explain,
	}

	var rep *rebuild.Report
	err = locker.WithLock(ctx, func(ctx context.Context) error {
		var runErr error
		rep, runErr = b.Run(ctx)
		return runErr
	})
	if errors.Is(err, rebuild.ErrLocked) {
		l.Warn("rebuild_locked", "key", cfg.Redis.LockKey)
	}
	if rep != nil {
		metrics.Observe(rep.Snapshot())
		if !opts.noPush {
			if perr := metrics.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); perr != nil {
				l.Warn("metrics_push_error", "err", perr)
			}
		}
		if serr := locker.SaveReport(ctx, rep); serr != nil {
			l.Warn("report_cache_error", "err", serr)
		}
	}
	return rep, classify(err)
}
