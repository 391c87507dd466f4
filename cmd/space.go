package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yqhp/task-space/api/rest"
	"yqhp/task-space/api/rest/client"
	"yqhp/task-space/internal/config"
	"yqhp/task-space/internal/space"
	"yqhp/task-space/pkg/logger"
	"yqhp/task-space/pkg/shared"
)

// spaceCmd 是 space 子命令
var spaceCmd = &cobra.Command{
	Use:   "space",
	Short: "管理 Space 节点",
	Long:  `Space 节点保存任务图，负责任务分发、后继任务合并和共享值传播。`,
}

// spaceStartCmd 是 space start 子命令
var spaceStartCmd = &cobra.Command{
	Use:   "start",
	Short: "启动 Space 节点",
	Long: `启动 Space 节点，开始接受 Computer 注册和任务提交。

Space 节点负责：
  - 管理 Computer 注册和健康检查
  - 把可运行的任务分发给 Computer
  - 在子任务完成后触发后继任务
  - 传播共享值并提供 REST API`,
	Example: `  # 使用默认配置启动
  taskspace space start

  # 指定监听地址和每个 Computer 的并发数
  taskspace space start --address :9600 --dispatch-concurrency 4

  # 使用配置文件
  taskspace space start --config config.yaml`,
	RunE: runSpaceStart,
}

// spaceStatusCmd 是 space status 子命令
var spaceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "查看 Space 节点状态",
	Long:  `查看 Space 节点的队列长度、已注册的 Computer 和当前共享值。`,
	Example: `  taskspace space status
  taskspace space status --space http://localhost:8600
  taskspace space status --label region=cn-east`,
	RunE: runSpaceStatus,
}

var spaceFlagPaths = map[string]string{
	"address":              "space.address",
	"dispatch-concurrency": "space.dispatch_concurrency",
	"health-interval":      "space.health_interval",
	"take-wait":            "space.take_wait",
	"exit-computers":       "space.exit_computers_on_stop",
}

func init() {
	rootCmd.AddCommand(spaceCmd)
	spaceCmd.AddCommand(spaceStartCmd)
	spaceCmd.AddCommand(spaceStatusCmd)

	// space start flags
	spaceStartCmd.Flags().String("address", ":8600", "HTTP 服务地址")
	spaceStartCmd.Flags().Int("dispatch-concurrency", 1, "未声明并发数的 Computer 同时执行的任务数")
	spaceStartCmd.Flags().Duration("health-interval", 10*time.Second, "Computer 健康检查间隔，0 表示关闭")
	spaceStartCmd.Flags().Duration("take-wait", 30*time.Second, "获取结果的长轮询时间")
	spaceStartCmd.Flags().Bool("exit-computers", false, "停止时通知 Computer 退出")

	// space status flags
	spaceStatusCmd.Flags().String("space", "localhost:8600", "Space 节点地址")
	spaceStatusCmd.Flags().StringToString("label", nil, "只列出带这些标签的 Computer，key=value 格式")
}

func runSpaceStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags(), spaceFlagPaths)
	if err != nil {
		return err
	}
	defer logger.Sync()

	s := space.NewTaskSpace(cfg.SpaceOptions(), nil)
	srv := rest.NewSpaceServer(s, restConfig(cfg), rest.DialComputers(clientConfig(cfg)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 处理关闭信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Println("\n正在关闭 Space...")
			cancel()
		case <-ctx.Done():
		}
	}()

	// 打印启动信息
	if !quiet {
		fmt.Printf(Banner, Version)
		fmt.Println()
		fmt.Printf("  正在启动 Space 节点...\n")
		fmt.Printf("  HTTP 地址: %s\n", cfg.Space.Address)
		fmt.Printf("  分发并发数: %d\n", cfg.Space.DispatchConcurrency)
		fmt.Printf("  健康检查间隔: %s\n", cfg.Space.HealthInterval)
		fmt.Println()
	}

	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("启动 Space 失败: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	if !quiet {
		fmt.Println("Space 节点启动成功。按 Ctrl+C 停止。")
	}

	// 等待上下文取消或服务退出
	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		logger.Error("HTTP 服务退出", zap.Error(serveErr))
	}

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := s.Stop(shutdownCtx); err != nil {
		logger.Warn("停止 Space 出错", zap.Error(err))
	}
	if err := srv.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("关闭 HTTP 服务出错", zap.Error(err))
	}

	if !quiet {
		fmt.Println("Space 节点已停止。")
	}
	if serveErr != nil {
		return fmt.Errorf("HTTP 服务失败: %w", serveErr)
	}
	return nil
}

func runSpaceStatus(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("space")
	sc, err := client.NewSpaceClient(addr, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := sc.Status(ctx)
	if err != nil {
		return fmt.Errorf("获取 Space 状态失败: %w", err)
	}

	fmt.Printf("Space 状态: %s\n", sc.URL())
	fmt.Printf("  状态: %s\n", status.State)
	fmt.Printf("  可运行任务: %d\n", status.ReadyTasks)
	fmt.Printf("  等待合并的后继任务: %d\n", status.WaitingJoin)
	fmt.Printf("  待取结果: %d\n", status.Results)

	if len(status.Shared) > 0 {
		var env shared.Envelope
		if err := sonic.Unmarshal(status.Shared, &env); err == nil {
			if sh, err := shared.Unwrap(&env); err == nil && sh != nil {
				fmt.Printf("  共享值: %v\n", sh.Get())
			}
		}
	}

	computers := status.Computers
	labels, _ := cmd.Flags().GetStringToString("label")
	if len(labels) > 0 {
		if computers, err = sc.Computers(ctx, labels); err != nil {
			return fmt.Errorf("获取 Computer 列表失败: %w", err)
		}
	}

	fmt.Printf("  Computer 数: %d（在线 %d）\n", len(status.Computers), status.OnlineComputers)
	if len(labels) > 0 {
		fmt.Printf("  匹配标签 %v: %d\n", labels, len(computers))
	}
	for _, c := range computers {
		fmt.Printf("    #%-3d %-20s %-8s 执行中 %d，已分发 %d  %s\n",
			c.ID, c.Name, c.State, c.ActiveTasks, c.Dispatched, c.Address)
	}
	return nil
}

// restConfig 从配置生成 HTTP 服务配置。
func restConfig(cfg *config.Config) *rest.Config {
	rc := rest.DefaultConfig()
	rc.Address = cfg.Space.Address
	rc.TakeWait = cfg.Space.TakeWait
	rc.AccessLog = logger.IsDebugEnabled()
	return rc
}

// clientConfig 从配置生成 Space 回调 Computer 所用的客户端配置。
func clientConfig(cfg *config.Config) *client.Config {
	cc := client.DefaultConfig()
	cc.RequestTimeout = cfg.Space.RequestTimeout
	cc.ExecuteTimeout = cfg.Space.ExecuteTimeout
	return cc
}
