package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	cfgpkg "subtrans/internal/config"
	"subtrans/internal/diag"
	"subtrans/internal/pipeline"
)

// version 由构建时 -ldflags "-X main.version=..." 注入。
var version = "dev"

// 测试中替换为桩实现。
var (
	pipelineRun     = pipeline.Run
	pipelineConvert = pipeline.RunConvert
	newLogger       = diag.NewLogger
)

// 退出码：0 成功；1 运行期失败；3 配置/装配失败。
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

// exitError 携带退出码；其他错误（旗标解析等）按配置错误处理。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(format string, err error) error {
	return &exitError{code: exitConfig, err: fmt.Errorf(format+": %w", err)}
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(stderr, err)
	return exitConfig
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "subtrans",
		Short: "结构保持的字幕/纯文本分批翻译",
		Long: `subtrans 将 SRT 字幕或纯文本按批次交给有序的翻译后端链，
只替换文本行，序号、时间轴与空行原样保留；后端失败时按优先级自动回退。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// 在任何 ENV 读取前加载工作目录下的 .env（不覆盖已有 ENV）
			return loadDotEnv(".env")
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(
		newTranslateCmd(stdout, stderr),
		newConvertCmd(stdout, stderr),
		newInitConfigCmd(stdout),
		newBackendsCmd(stdout),
		newVersionCmd(stdout),
	)
	return root
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "打印版本",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "subtrans %s\n", version)
		},
	}
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return configErr("读取 .env 失败", err)
	}
	if err := godotenv.Load(path); err != nil {
		return configErr("解析 .env 失败", err)
	}
	return nil
}

// defaultConfigNames: 未显式指定时在工作目录按序探测。
var defaultConfigNames = []string{"config.json", "config.yaml", "config.yml", "config.toml"}

// loadConfig 按层叠合并：Defaults < 配置文件 < SUBTRANS_CONFIG_JSON < 环境变量。
// CLI 覆盖由各子命令在其后合并。
func loadConfig(path string) (cfgpkg.Config, error) {
	if path == "" {
		path = os.Getenv(cfgpkg.EnvPrefix + "CONFIG_FILE")
	}
	if path == "" {
		for _, n := range defaultConfigNames {
			if st, err := os.Stat(n); err == nil && !st.IsDir() {
				path = n
				break
			}
		}
	}
	cfg := cfgpkg.Defaults()
	if path != "" {
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfgpkg.Config{}, configErr("配置解析失败", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	if s := os.Getenv(cfgpkg.EnvPrefix + "CONFIG_JSON"); s != "" {
		base, err := cfgpkg.LoadJSON("", []byte(s))
		if err != nil {
			return cfgpkg.Config{}, configErr("配置解析失败", err)
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	over, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfgpkg.Config{}, configErr("环境变量解析失败", err)
	}
	return cfgpkg.Merge(cfg, over), nil
}

// dumpConfig 在校验失败时打印有效配置（不含 provider 选项，避免泄露密钥）。
func dumpConfig(w io.Writer, c cfgpkg.Config) {
	redacted := c
	redacted.Provider = make(map[string]cfgpkg.Provider, len(c.Provider))
	for k, p := range c.Provider {
		p.Options = nil
		redacted.Provider[k] = p
	}
	b, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(w, "有效配置:\n%s\n", b)
}

// preflightCheckOutputDir: 使用文件系统 Writer 时，启动前检查输出目录可写性。
// 目录存在则尝试创建并删除临时文件；不存在则检查父目录。
func preflightCheckOutputDir(cfg cfgpkg.Config) error {
	writer := strings.TrimSpace(cfg.Components.Writer)
	if writer == "" {
		writer = cfgpkg.Defaults().Components.Writer
	}
	if writer != "fs" {
		return nil
	}
	dir := strings.TrimSpace(cfg.Output.Dir)
	if s, ok := cfg.Options.Writer["output_dir"].(string); ok && strings.TrimSpace(s) != "" {
		dir = strings.TrimSpace(s)
	}
	if dir == "" {
		// 交给装配阶段报错
		return nil
	}
	st, err := os.Stat(dir)
	switch {
	case err == nil && st.IsDir():
		f, err := os.CreateTemp(dir, ".wcheck-*")
		if err != nil {
			return err
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
		return nil
	case err == nil:
		return fmt.Errorf("路径存在但不是目录: %s", dir)
	case !os.IsNotExist(err):
		return err
	}
	parent := filepath.Dir(filepath.Clean(dir))
	for {
		pst, err := os.Stat(parent)
		if err == nil {
			if !pst.IsDir() {
				return fmt.Errorf("父路径不是目录: %s", parent)
			}
			break
		}
		if !os.IsNotExist(err) {
			return err
		}
		// 逐级向上，MkdirAll 会创建缺失的中间目录
		next := filepath.Dir(parent)
		if next == parent {
			return fmt.Errorf("无法确定父目录: %s", dir)
		}
		parent = next
	}
	tmpd, err := os.MkdirTemp(parent, ".wcheck-*")
	if err != nil {
		return err
	}
	_ = os.RemoveAll(tmpd)
	return nil
}
