package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "subtrans/internal/config"
)

func newInitConfigCmd(stdout io.Writer) *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "init-config [dir]",
		Short: "生成可运行的默认配置与 .env 模板（已存在的文件不会被覆盖）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				dir = args[0]
			}
			ext := strings.ToLower(strings.TrimSpace(as))
			if ext == "yml" {
				ext = "yaml"
			}
			tpl := cfgpkg.DefaultTemplateConfig()
			b, err := cfgpkg.Render(tpl, ext)
			if err != nil {
				return configErr("生成默认配置失败", err)
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return configErr("生成默认配置失败", err)
			}
			cfgPath := filepath.Join(dir, "config."+ext)
			if err := writeNew(cfgPath, b); err != nil {
				return configErr("生成默认配置失败", err)
			}
			fmt.Fprintf(stdout, "已生成 %s\n", cfgPath)

			envPath := filepath.Join(dir, ".env")
			switch err := writeNew(envPath, []byte(cfgpkg.EnvTemplate(tpl))); {
			case err == nil:
				fmt.Fprintf(stdout, "已生成 %s\n", envPath)
			case os.IsExist(err):
				fmt.Fprintf(stdout, "%s 已存在，跳过\n", envPath)
			default:
				fmt.Fprintf(stdout, "提示：.env 生成失败（已跳过）：%v\n", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&as, "as", "json", "配置文件格式：json | yaml | toml")
	return cmd
}

// writeNew 仅创建新文件；目标已存在时返回 os.ErrExist。
func writeNew(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
