// Package cmd 提供 taskspace CLI 的命令实现
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"yqhp/task-space/internal/config"
	"yqhp/task-space/pkg/logger"
)

const (
	// Version 是当前版本号
	Version = "0.1.0"
	// Banner 是启动时显示的 ASCII 艺术
	Banner = `
     _____         _      ____
    |_   _|_ _ ___| | __ / ___| _ __   __ _  ___ ___
      | |/ _` + "`" + ` / __| |/ / \___ \| '_ \ / _` + "`" + ` |/ __/ _ \
      | | (_| \__ \   <   ___) | |_) | (_| | (_|  __/
      |_|\__,_|___/_|\_\ |____/| .__/ \__,_|\___\___|  %s
                               |_|
`
)

var (
	// 全局配置
	cfgFile string
	debug   bool
	quiet   bool
)

// rootCmd 是根命令
var rootCmd = &cobra.Command{
	Use:   "taskspace",
	Short: "分布式任务空间计算引擎",
	Long: `taskspace 是一个主从式的分布式计算引擎。

Space 保存任务图并把可运行的任务分发给 Computer；Computer 执行或拆分任务，
把结果交回 Space。拆分产生的后继任务在全部子任务完成后运行，
共享值（如当前最优解的代价）在所有节点之间传播以剪枝。`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// 全局 flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "启用调试日志")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "静默模式")

	// 禁用默认的 completion 命令
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// 自定义版本模板
	rootCmd.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadConfig 按 默认值 < 配置文件 < 环境变量 < 命令行 的顺序加载配置并校验。
// flagPaths 把命令行 flag 名映射到配置路径，只有显式指定的 flag 生效。
func loadConfig(flags *pflag.FlagSet, flagPaths map[string]string) (*config.Config, error) {
	loader := config.NewLoader()
	if cfgFile != "" {
		loader = loader.WithConfigPath(cfgFile)
	}
	if overrides := changedFlags(flags, flagPaths); len(overrides) > 0 {
		loader = loader.WithCmdArgs(overrides)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置无效: %w", err)
	}

	setupLogging(cfg)
	return cfg, nil
}

func changedFlags(flags *pflag.FlagSet, flagPaths map[string]string) map[string]string {
	overrides := make(map[string]string)
	if flags == nil {
		return overrides
	}
	for name, path := range flagPaths {
		f := flags.Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		overrides[path] = f.Value.String()
	}
	return overrides
}

func setupLogging(cfg *config.Config) {
	opts := cfg.LoggerOptions()
	if quiet && !debug {
		opts.Level = "warn"
	}
	logger.Init(opts)
	if debug {
		logger.EnableDebug()
	}
}
