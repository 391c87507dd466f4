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

	"yqhp/task-space/api/rest/client"
	"yqhp/task-space/internal/config"
	"yqhp/task-space/internal/tsp"
	"yqhp/task-space/pkg/logger"
	"yqhp/task-space/pkg/task"
)

// tspCmd 是 tsp 子命令
var tspCmd = &cobra.Command{
	Use:   "tsp",
	Short: "求解欧几里得旅行商问题",
	Long:  `把旅行商问题作为分支定界作业提交给 Space，等待最短回路。`,
}

// tspRunCmd 是 tsp run 子命令
var tspRunCmd = &cobra.Command{
	Use:   "run",
	Short: "向 Space 提交 TSP 作业",
	Long: `向运行中的 Space 提交 TSP 作业并等待结果。

城市文件为 YAML 格式：
  name: square
  cities:
    - [0, 0]
    - [0, 1]
    - [1, 1]
    - [1, 0]

未指定城市文件时求解内置的 12 城市示例。`,
	Example: `  # 求解内置示例
  taskspace tsp run --space localhost:8600

  # 求解指定文件，拆分到第 3 层
  taskspace tsp run --cities cities.yaml --base-level 3

  # 输出 JSON 结果
  taskspace tsp run --cities cities.yaml --out-json tour.json`,
	RunE: runTSP,
}

var jobFlagPaths = map[string]string{
	"cities":     "job.cities_file",
	"base-level": "job.base_level",
	"timeout":    "job.timeout",
}

func init() {
	rootCmd.AddCommand(tspCmd)
	tspCmd.AddCommand(tspRunCmd)

	addJobFlags(tspRunCmd)
	tspRunCmd.Flags().String("space", "localhost:8600", "Space 节点地址")
}

func addJobFlags(cmd *cobra.Command) {
	cmd.Flags().String("cities", "", "城市文件路径（YAML）")
	cmd.Flags().Int("base-level", tsp.BaseLevel, "任务拆分到此层后直接求解")
	cmd.Flags().Duration("timeout", time.Hour, "作业超时时间")
	cmd.Flags().String("out-json", "", "输出 JSON 结果到文件")
}

func runTSP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags(), jobFlagPaths)
	if err != nil {
		return err
	}
	defer logger.Sync()

	addr, _ := cmd.Flags().GetString("space")
	sc, err := client.NewSpaceClient(addr, nil)
	if err != nil {
		return fmt.Errorf("无效的 Space 地址: %w", err)
	}

	ctx, cancel := jobContext(cfg)
	defer cancel()

	if err := sc.Health(ctx); err != nil {
		return fmt.Errorf("无法访问 Space %s: %w", sc.URL(), err)
	}

	out, _ := cmd.Flags().GetString("out-json")
	return solve(ctx, cfg, sc, out)
}

// jobContext 返回受作业超时和关闭信号约束的上下文。
func jobContext(cfg *config.Config) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if cfg.Job.Timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), cfg.Job.Timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			fmt.Println("\n正在中止作业...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// TourResult 保存 TSP 作业的结果
type TourResult struct {
	JobID    string        `json:"job_id"`
	Cities   []tsp.City    `json:"cities"`
	Tour     []int         `json:"tour"`
	Cost     float64       `json:"cost"`
	Duration time.Duration `json:"duration"`
}

// solve 在 space 上运行 TSP 作业并打印结果。
func solve(ctx context.Context, cfg *config.Config, space task.Space, outJSON string) error {
	cities := tsp.DemoCities
	if cfg.Job.CitiesFile != "" {
		loaded, err := tsp.LoadCities(cfg.Job.CitiesFile)
		if err != nil {
			return err
		}
		cities = loaded
	}

	job := tsp.NewEuclideanJob(cities, cfg.Job.BaseLevel)
	if !quiet {
		fmt.Printf("  作业: %s\n", job.ID)
		fmt.Printf("  城市数: %d\n", len(cities))
		fmt.Printf("  拆分层数: %d\n", cfg.Job.BaseLevel)
		fmt.Println()
		fmt.Println("求解中...")
	}

	start := time.Now()
	tour, err := task.Run[[]int](ctx, job, space)
	if err != nil {
		return fmt.Errorf("求解失败: %w", err)
	}

	result := &TourResult{
		JobID:    job.ID,
		Cities:   cities,
		Tour:     tour,
		Cost:     tsp.TourCost(cities, tour),
		Duration: time.Since(start),
	}

	if !quiet {
		fmt.Println()
		fmt.Printf("  最短回路: %v\n", result.Tour)
		fmt.Printf("  长度: %.4f\n", result.Cost)
		fmt.Printf("  耗时: %s\n", result.Duration.Round(time.Millisecond))
	}

	if outJSON != "" {
		data, err := sonic.ConfigStd.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(outJSON, data, 0o644); err != nil {
			return fmt.Errorf("写入 JSON 输出失败: %w", err)
		}
		if !quiet {
			fmt.Printf("\n结果已写入: %s\n", outJSON)
		}
	}
	return nil
}
