package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/task-space/api/rest"
	"yqhp/task-space/api/rest/client"
	"yqhp/task-space/internal/computer"
	_ "yqhp/task-space/internal/tsp" // 注册 TSP 任务类型
	"yqhp/task-space/pkg/logger"
)

// computerCmd 是 computer 子命令
var computerCmd = &cobra.Command{
	Use:   "computer",
	Short: "管理 Computer 节点",
	Long:  `Computer 节点执行 Space 分发的任务：原子任务直接执行，其余任务拆分为子任务和后继任务。`,
}

// computerStartCmd 是 computer start 子命令
var computerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "启动 Computer 节点",
	Long: `启动 Computer 节点，注册到 Space 并等待任务分发。

Space 通过 Computer 的 HTTP 地址回调它。Computer 在容器或 NAT 后运行时，
用 --advertise 指定 Space 可以访问的地址。`,
	Example: `  # 使用默认配置启动
  taskspace computer start

  # 指定 Space 地址和并发数
  taskspace computer start --space 10.0.0.1:8600 --workers 4

  # 指定监听地址和对外地址
  taskspace computer start --address :8601 --advertise 10.0.0.2:8601

  # 添加标签
  taskspace computer start --labels region=cn-east,env=prod`,
	RunE: runComputerStart,
}

// computerStatusCmd 是 computer status 子命令
var computerStatusCmd = &cobra.Command{
	Use:     "status",
	Short:   "查看 Computer 节点状态",
	Long:    `查看 Computer 节点的执行统计。`,
	Example: `  taskspace computer status --computer http://localhost:8601`,
	RunE:    runComputerStatus,
}

var computerFlagPaths = map[string]string{
	"name":      "computer.name",
	"space":     "computer.space_addr",
	"address":   "computer.address",
	"advertise": "computer.advertise_addr",
	"workers":   "computer.workers",
	"labels":    "computer.labels",
}

func init() {
	rootCmd.AddCommand(computerCmd)
	computerCmd.AddCommand(computerStartCmd)
	computerCmd.AddCommand(computerStatusCmd)

	// computer start flags
	computerStartCmd.Flags().String("name", "", "Computer 名称（不指定则自动生成）")
	computerStartCmd.Flags().String("space", "localhost:8600", "Space 节点地址")
	computerStartCmd.Flags().String("address", ":8601", "Computer 监听地址")
	computerStartCmd.Flags().String("advertise", "", "Space 回调 Computer 的地址（默认为监听地址）")
	computerStartCmd.Flags().Int("workers", 1, "同时执行的任务数")
	computerStartCmd.Flags().String("labels", "", "标签，key=value 格式，逗号分隔")

	// computer status flags
	computerStatusCmd.Flags().String("computer", "localhost:8601", "Computer 节点地址")
}

func runComputerStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags(), computerFlagPaths)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := cfg.ComputerOptions()
	c := computer.NewTaskComputer(opts)
	// Space 通知退出时结束进程
	c.SetExitHook(cancel)

	srvCfg := rest.DefaultConfig()
	srvCfg.Address = cfg.Computer.Address
	srvCfg.AccessLog = logger.IsDebugEnabled()
	srv := rest.NewComputerServer(c, srvCfg)

	sc, err := client.NewSpaceClient(cfg.Computer.SpaceAddr, &client.Config{
		RequestTimeout: cfg.Computer.RequestTimeout,
		ExecuteTimeout: cfg.Space.ExecuteTimeout,
		TakeWait:       client.DefaultConfig().TakeWait,
	})
	if err != nil {
		return fmt.Errorf("无效的 Space 地址: %w", err)
	}

	// 处理关闭信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Println("\n正在关闭 Computer...")
			cancel()
		case <-ctx.Done():
		}
	}()

	// 打印启动信息
	if !quiet {
		fmt.Printf(Banner, Version)
		fmt.Println()
		fmt.Printf("  正在启动 Computer 节点...\n")
		fmt.Printf("  名称: %s\n", opts.Name)
		fmt.Printf("  地址: %s\n", opts.Address)
		fmt.Printf("  Space: %s\n", sc.URL())
		fmt.Printf("  并发数: %d\n", opts.Workers)
		if len(opts.Labels) > 0 {
			fmt.Printf("  标签: %v\n", opts.Labels)
		}
		fmt.Println()
	}

	// 先启动 HTTP 服务，Space 在注册时就会回调
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	if !quiet {
		fmt.Printf("正在连接 Space: %s...\n", sc.URL())
	}
	if err := c.Connect(ctx, sc); err != nil {
		_ = srv.ShutdownWithTimeout(5 * time.Second)
		return fmt.Errorf("连接 Space 失败: %w", err)
	}

	if !quiet {
		fmt.Printf("已注册到 Space，Computer ID: %d。按 Ctrl+C 停止。\n", c.GetID())
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		logger.Error("HTTP 服务退出", zap.Error(serveErr))
	}

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := sc.Unregister(shutdownCtx, c.GetID()); err != nil && !client.IsUnavailable(err) {
		logger.Debug("注销 Computer 失败", zap.Error(err))
	}
	if err := c.Stop(shutdownCtx); err != nil {
		logger.Warn("停止 Computer 出错", zap.Error(err))
	}
	if err := srv.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("关闭 HTTP 服务出错", zap.Error(err))
	}

	if !quiet {
		fmt.Println("Computer 节点已停止。")
	}
	if serveErr != nil {
		return fmt.Errorf("HTTP 服务失败: %w", serveErr)
	}
	return nil
}

func runComputerStatus(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("computer")
	cc, err := client.NewComputerClient(addr, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := cc.Stats(ctx)
	if err != nil {
		return fmt.Errorf("获取 Computer 状态失败: %w", err)
	}

	fmt.Printf("Computer 状态: %s\n", cc.URL())
	fmt.Printf("  ID: %d\n", stats.ComputerID)
	fmt.Printf("  运行时间: %s\n", (time.Duration(stats.UptimeSec) * time.Second).String())
	fmt.Printf("  已执行: %d，已拆分: %d，失败: %d\n", stats.Executed, stats.Split, stats.Failed)
	fmt.Printf("  耗时 (ms): min=%.2f mean=%.2f p50=%.2f p90=%.2f p99=%.2f max=%.2f\n",
		stats.MinMs, stats.MeanMs, stats.P50Ms, stats.P90Ms, stats.P99Ms, stats.MaxMs)
	return nil
}
