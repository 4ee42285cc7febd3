package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cfgpkg "subtrans/internal/config"
	"subtrans/internal/diag"
	"subtrans/internal/lang"
	"subtrans/internal/pipeline"
)

// runFlags: translate 与 convert 共用的旗标。
type runFlags struct {
	config    string
	format    string
	source    string
	target    string
	variant   string
	maxChars  int
	pace      float64
	backends  []string
	outputDir string
	suffix    string
	logLevel  string
	status    bool
	metrics   bool
}

// overlay 仅收集显式给出的旗标，未设置的旗标不覆盖下层配置。
func (f *runFlags) overlay(cmd *cobra.Command, args []string) cfgpkg.Config {
	var over cfgpkg.Config
	changed := cmd.Flags().Changed
	if len(args) > 0 {
		over.Inputs = args
	}
	if changed("format") {
		over.Format = f.format
	}
	if changed("source") {
		over.Source = f.source
	}
	if changed("target") {
		over.Target = f.target
	}
	if changed("variant") {
		over.TargetVariant = f.variant
	}
	if changed("max-batch-chars") {
		over.MaxBatchChars = f.maxChars
	}
	if changed("pace") {
		p := f.pace
		over.PaceSeconds = &p
	}
	if changed("backends") {
		over.Backends = f.backends
	}
	if changed("output-dir") {
		over.Output.Dir = f.outputDir
	}
	if changed("suffix") {
		over.Output.Suffix = f.suffix
	}
	if changed("log-level") {
		over.Logging.Level = f.logLevel
	}
	return over
}

func addCommonFlags(cmd *cobra.Command, f *runFlags) {
	fs := cmd.Flags()
	fs.StringVar(&f.config, "config", "", "配置文件（.json/.yaml/.toml）；缺省探测 ./config.*")
	fs.StringVar(&f.format, "format", "", "输入格式：srt | plain")
	fs.StringVar(&f.variant, "variant", "", "字形转换方向（OpenCC 模式，如 s2twp）")
	fs.StringVar(&f.outputDir, "output-dir", "", "输出目录")
	fs.StringVar(&f.suffix, "suffix", "", "输出文件名后缀（插入扩展名之前）")
	fs.StringVar(&f.logLevel, "log-level", "", "日志级别：debug | info | warn | error")
	fs.BoolVar(&f.status, "status", true, "终端进度提示（stderr）；TTY 单行刷新，非 TTY 逐行输出")
	fs.BoolVar(&f.metrics, "metrics", false, "运行结束后打印计数表")
}

func newTranslateCmd(stdout, stderr io.Writer) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "translate [paths...]",
		Short: "翻译 SRT/纯文本文件（'-' 或缺省为 STDIN）",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f.config)
			if err != nil {
				return err
			}
			cfg = cfgpkg.Merge(cfg, f.overlay(cmd, args))
			if len(cfg.Inputs) == 0 {
				cfg.Inputs = []string{"-"}
			}
			logger := newLogger(diag.NewCorrID(), cfg.Logging.Level)
			if err := preflightCheckOutputDir(cfg); err != nil {
				return configErr("输出目录不可写或无法创建", err)
			}
			comp, set, err := cfgpkg.Assemble(cfg, logger)
			if err != nil {
				dumpConfig(stderr, cfg)
				logger.ErrorWith("cli", string(diag.Classify(err)), err.Error(), nil, "", "")
				return configErr("装配失败", err)
			}
			logger.DebugWithKV("config", "effective", "", "", "", map[string]string{
				"inputs_count": fmt.Sprint(len(set.Inputs)),
				"format":       string(set.Format),
				"backends":     strings.Join(comp.Dispatcher.Backends(), ","),
				"max_chars":    fmt.Sprint(comp.Dispatcher.MaxBatchChars(set.MaxBatchChars)),
				"reader":       cfg.Components.Reader,
				"writer":       cfg.Components.Writer,
			})
			plan, _ := lang.Derive(set.Source, set.Target, set.Variant)
			return runAndReport(cmd.Context(), stdout, stderr, f, logger,
				strings.Join(comp.Dispatcher.Backends(), " > "), plan.Describe(),
				func(ctx context.Context) ([]pipeline.FileReport, error) {
					return pipelineRun(ctx, comp, set, logger)
				})
		},
	}
	addCommonFlags(cmd, f)
	fs := cmd.Flags()
	fs.StringVar(&f.source, "source", "", "源语言（BCP 47 或 auto）")
	fs.StringVar(&f.target, "target", "", "目标语言（BCP 47）")
	fs.IntVar(&f.maxChars, "max-batch-chars", 0, "单批字符上限")
	fs.Float64Var(&f.pace, "pace", 0, "同一后端相邻两次派发的最小间隔（秒，可为小数）；0 表示不等待")
	fs.StringSliceVar(&f.backends, "backends", nil, "有序 provider 名称（逗号分隔），顺序即优先级")
	return cmd
}

func newConvertCmd(stdout, stderr io.Writer) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "convert [paths...]",
		Short: "仅做简繁字形转换（不调用翻译后端）",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f.config)
			if err != nil {
				return err
			}
			cfg = cfgpkg.Merge(cfg, f.overlay(cmd, args))
			if len(cfg.Inputs) == 0 {
				cfg.Inputs = []string{"-"}
			}
			logger := newLogger(diag.NewCorrID(), cfg.Logging.Level)
			if err := preflightCheckOutputDir(cfg); err != nil {
				return configErr("输出目录不可写或无法创建", err)
			}
			comp, set, err := cfgpkg.AssembleConvert(cfg)
			if err != nil {
				logger.ErrorWith("cli", string(diag.Classify(err)), err.Error(), nil, "", "")
				return configErr("装配失败", err)
			}
			return runAndReport(cmd.Context(), stdout, stderr, f, logger, "opencc", set.Variant,
				func(ctx context.Context) ([]pipeline.FileReport, error) {
					return pipelineConvert(ctx, comp, set, logger)
				})
		},
	}
	addCommonFlags(cmd, f)
	return cmd
}

// runAndReport 安装终端提示与中断信号，执行运行体并打印汇总表。
func runAndReport(parent context.Context, stdout, stderr io.Writer, f *runFlags, logger *diag.Logger, chain, plan string, body func(context.Context) ([]pipeline.FileReport, error)) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	term := diag.NewTerminal(stderr, f.status)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)
	term.RunStart(chain, plan)

	start := time.Now()
	t := logger.StartWith("cli", "run", "", "")
	reports, err := body(ctx)
	if len(reports) > 0 {
		fmt.Fprintln(stdout, renderSummary(reports))
	}
	if f.metrics {
		fmt.Fprintln(stdout, renderMetrics(diag.Snapshot()))
	}
	if err != nil {
		code := string(diag.Classify(err))
		logger.ErrorWith("cli", code, "first error", &start, "", "")
		diag.IncOp("cli", "error", "error")
		term.RunFinish(false, time.Since(start))
		if errors.Is(err, context.Canceled) {
			return &exitError{code: exitRuntime, err: errors.New("已取消")}
		}
		return &exitError{code: exitRuntime, err: fmt.Errorf("运行失败: %w", err)}
	}
	t.Finish("run", int64(len(reports)))
	diag.IncOp("cli", "finish", "success")
	diag.ObserveDuration("cli", "finish", time.Since(start).Milliseconds())
	term.RunFinish(true, time.Since(start))
	return nil
}
