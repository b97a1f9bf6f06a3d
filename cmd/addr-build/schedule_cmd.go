package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"addr-hierarchy/internal/rebuild"

	"github.com/spf13/cobra"
)

func newScheduleCmd(g *globalOptions) *cobra.Command {
	var opts buildOptions
	var runNow bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Rebuild ADDRESSES weekly until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := g.setup()
			if err != nil {
				return err
			}
			weekday, err := cfg.Schedule.ParseWeekday()
			if err != nil {
				return withCode(exitConfig, err)
			}
			loc, err := cfg.Schedule.Location()
			if err != nil {
				return withCode(exitConfig, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			state := &runState{}
			run := func(ctx context.Context) error {
				rep, err := runBuild(ctx, cfg, l, opts)
				state.record(rep, err)
				return err
			}
			if cfg.Metrics.Listen != "" {
				go serveStatus(ctx, cfg.Metrics.Listen, newStatusMux(state), l)
			}
			if runNow {
				if err := run(ctx); err != nil {
					l.Error("initial_rebuild_error", "err", err)
				}
			}
			s := &rebuild.Scheduler{Loc: loc, Weekday: weekday, Hour: cfg.Schedule.Hour, Run: run}
			return s.Start(ctx)
		},
	}
	cmd.Flags().BoolVar(&runNow, "now", false, "Run one rebuild immediately before waiting for the schedule")
	cmd.Flags().BoolVar(&opts.noPush, "no-push", false, "Skip the Pushgateway push")
	return cmd
}
