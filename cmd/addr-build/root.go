package main

import (
	"fmt"
	"log/slog"
	"os"

	"addr-hierarchy/internal/config"
	"addr-hierarchy/internal/hierarchy"
	"addr-hierarchy/internal/logger"
	"addr-hierarchy/internal/rebuild"
	"addr-hierarchy/internal/store"
	"addr-hierarchy/internal/utils"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// 退出码：0 成功，1 未分类错误，其余见下
const (
	exitOK        = 0
	exitConfig    = 2
	exitUsage     = 3
	exitDB        = 4
	exitDBWrite   = 5
	exitInvariant = 6
	exitLocked    = 7
)

// codedError：为错误附加进程退出码，Execute 据此退出
type codedError struct {
	code int
	error
}

func (e *codedError) Unwrap() error { return e.error }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, error: err}
}

func exitCode(err error) int {
	var ce *codedError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &ce):
		return ce.code
	}
	return 1
}

// classify：重建错误按失败阶段映射退出码
func classify(err error) error {
	var (
		ie *hierarchy.InvariantError
		se *rebuild.StageError
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rebuild.ErrLocked):
		return withCode(exitLocked, err)
	case errors.As(err, &ie):
		return withCode(exitInvariant, err)
	case !errors.As(err, &se):
		return err
	}
	code, ok := map[string]int{
		rebuild.StageSource: exitDB,
		rebuild.StageSink:   exitDBWrite,
		rebuild.StageLock:   exitLocked,
	}[se.Stage]
	if !ok {
		return err
	}
	return withCode(code, err)
}

type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var g globalOptions
	cmd := &cobra.Command{
		Use:           "addr-build",
		Short:         "Rebuild the year-segmented ADDRESSES table from CBDB place and containment data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.configPath, "config", os.Getenv("CONFIG_FILE"), "YAML config file (env still overrides)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Override LOG_LEVEL (debug|info|warn|error)")

	cmd.AddCommand(newBuildCmd(&g))
	cmd.AddCommand(newScheduleCmd(&g))
	cmd.AddCommand(newShowCmd(&g))
	cmd.AddCommand(newReportCmd(&g))
	cmd.AddCommand(newSchemaCmd(&g))
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}

// setup：读取配置并初始化日志器；配置错误统一为 exitConfig
func (g *globalOptions) setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, withCode(exitConfig, err)
	}
	level := cfg.Log.Level
	if g.logLevel != "" {
		level = g.logLevel
	}
	return cfg, logger.SetupWith(level, cfg.Log.Format), nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	db, err := utils.Open(cfg.Database)
	if err != nil {
		return nil, withCode(exitDB, err)
	}
	return store.AttachDB(db, cfg.Database.Driver), nil
}

func newLocker(cfg *config.Config) *rebuild.Locker {
	client := utils.OpenRedis(cfg.Redis)
	if client == nil {
		return nil
	}
	return &rebuild.Locker{Client: client, Key: cfg.Redis.LockKey, TTL: cfg.Redis.LockTTL, ReportKey: cfg.Redis.ReportKey}
}
