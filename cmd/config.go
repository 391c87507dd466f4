package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"yqhp/task-space/internal/config"
)

// configCmd 是 config 子命令
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "查看和校验配置",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "输出合并后的配置",
	Long:  `按 默认值 < 配置文件 < 环境变量（TS_ 前缀）的顺序合并配置并以 YAML 输出。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil, nil)
		if err != nil {
			return err
		}
		data, err := cfg.Serialize()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configValidateCmd = &cobra.Command{
	Use:     "validate <config.yaml>",
	Short:   "校验配置文件",
	Args:    cobra.ExactArgs(1),
	Example: `  taskspace config validate config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(args[0]); err != nil {
			return fmt.Errorf("配置文件不可读: %w", err)
		}
		if _, err := config.LoadAndValidate(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: 配置有效\n", args[0])
		return nil
	},
}

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "列出所有配置项",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PATH\tTYPE\tDEFAULT\tENV\tDESCRIPTION")
		for _, f := range config.GetSchema().Fields {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", f.Path, f.Type, f.Default, f.EnvVar, f.Description)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configSchemaCmd)
}
