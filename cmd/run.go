package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/task-space/internal/local"
	"yqhp/task-space/pkg/logger"
)

// runCmd 是 run 子命令
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "独立模式求解 TSP",
	Long: `在同一进程中启动 Space 和若干 Computer，求解 TSP 后退出。

任务在进程内分发，不经过网络，适合验证作业和调整拆分层数。`,
	Example: `  # 4 个 Computer 求解内置示例
  taskspace run --computers 4

  # 指定城市文件和每个 Computer 的并发数
  taskspace run --cities cities.yaml --computers 2 --workers 4`,
	RunE: runStandalone,
}

func init() {
	rootCmd.AddCommand(runCmd)

	addJobFlags(runCmd)
	runCmd.Flags().Int("computers", 2, "Computer 数量")
	runCmd.Flags().Int("workers", 1, "每个 Computer 同时执行的任务数")
}

func runStandalone(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags(), jobFlagPaths)
	if err != nil {
		return err
	}
	defer logger.Sync()

	computers, _ := cmd.Flags().GetInt("computers")
	workers, _ := cmd.Flags().GetInt("workers")

	ctx, cancel := jobContext(cfg)
	defer cancel()

	if !quiet {
		fmt.Printf(Banner, Version)
		fmt.Println()
		fmt.Printf("  执行模式: 独立模式\n")
		fmt.Printf("  Computer 数: %d，每个并发 %d\n", computers, workers)
	}

	spaceCfg := cfg.SpaceOptions()
	spaceCfg.HealthCheckInterval = 0
	cluster, err := local.Start(ctx, spaceCfg, computers, workers)
	if err != nil {
		return fmt.Errorf("启动执行引擎失败: %w", err)
	}
	defer func() {
		if err := cluster.Stop(context.Background()); err != nil {
			logger.Warn("停止执行引擎出错", zap.Error(err))
		}
	}()

	out, _ := cmd.Flags().GetString("out-json")
	return solve(ctx, cfg, cluster.Space, out)
}
