package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"subtrans/internal/diag"
	"subtrans/internal/dispatch"
	"subtrans/internal/lang"
	"subtrans/pkg/contract"
)

// - 单文档单流水线：批次严格按序逐个派发，不并发。
// - 首错即停：任一批耗尽全部后端或回填校验失败，整篇放弃，不写半成品。
// - 取消以批为粒度：每次派发前检查 ctx。
// - 字形变体（简繁）不经翻译后端，由 Converter 本地完成。

// Components 聚合运行所需的组件。
type Components struct {
	Tokenizers map[contract.Format]contract.Tokenizer
	Batcher    contract.Batcher
	Dispatcher *dispatch.Dispatcher
	Reinserter contract.Reinserter
	Converter  contract.Converter
	Reader     contract.Reader
	Writer     contract.Writer
}

// Settings 运行期配置。
type Settings struct {
	Inputs []string
	Format contract.Format
	Source string
	Target string
	// Variant: 显式的字形转换方向；翻译模式下覆盖语言计划的译后转换，转换模式下即转换方向。
	Variant string
	// MaxBatchChars: 全局批上限；实际上限取其与各后端上限的最小值。
	MaxBatchChars int
	// OutputSuffix: 插入到输出文件扩展名之前；为空时翻译模式用 ".<target>"，转换模式用 ".<variant>"。
	OutputSuffix string
}

// Outcome 单篇文档的处理结果。
type Outcome struct {
	Text         string
	Plan         lang.Plan
	Batches      int
	Fallbacks    []contract.FallbackEvent
	Degradations []contract.ParseDegraded
}

// FileReport 汇总输出用的逐文件记录。
type FileReport struct {
	FileID   contract.FileID
	Output   contract.FileID
	Outcome  Outcome
	Duration time.Duration
	Err      error
}

// TranslateDocument 将一篇文档按结构翻译：
// Tokenizer → (PreConvert) → Batcher → Dispatcher(逐批) → (PostConvert) → Reinserter。
// 任何一步失败即返回错误，不产生部分结果。
func TranslateDocument(ctx context.Context, comp Components, set Settings, fileID, raw string, logger *diag.Logger) (Outcome, error) {
	tok, ok := comp.Tokenizers[set.Format]
	if !ok || tok == nil {
		return Outcome{}, fmt.Errorf("pipeline: %w: no tokenizer for format %q", contract.ErrInvalidInput, set.Format)
	}
	plan, err := lang.Derive(set.Source, set.Target, set.Variant)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Plan: plan}

	tm := logger.StartWith("tokenizer", "tokenize", fileID, "")
	doc := tok.Tokenize(raw)
	tm.Finish("tokenize", int64(len(doc.Slots)))
	diag.IncOp("tokenizer", "finish", "success")
	out.Degradations = doc.Degradations
	for _, d := range doc.Degradations {
		logger.WarnWithKV("tokenizer", "warn", "degraded", d.Reason, fileID, "", map[string]string{"line": strconv.Itoa(d.Position + 1)})
	}

	texts := doc.Texts()
	if plan.PreConvert != "" {
		if texts, err = convertLines(comp.Converter, texts, plan.PreConvert); err != nil {
			return Outcome{}, fmt.Errorf("pre-convert: %w", err)
		}
	}

	var results []contract.TranslationResult
	if plan.ConvertOnly {
		// 同语言字形变体：整篇作为单个结果回填
		if len(texts) > 0 {
			results = []contract.TranslationResult{{BatchIndex: 0, Lines: texts, Backend: "convert"}}
			out.Batches = 1
		}
		if t := diag.GetTerminal(); t != nil {
			t.FileStart(fileID, out.Batches)
		}
	} else {
		if comp.Dispatcher == nil || comp.Batcher == nil {
			return Outcome{}, fmt.Errorf("pipeline: %w: translation needs batcher and dispatcher", contract.ErrInvalidInput)
		}
		slots := make([]contract.ContentSlot, len(doc.Slots))
		for i, s := range doc.Slots {
			slots[i] = contract.ContentSlot{Position: s.Position, Text: texts[i]}
		}
		btm := logger.StartWith("batcher", "make", fileID, "")
		batches, err := comp.Batcher.Make(slots, comp.Dispatcher.MaxBatchChars(set.MaxBatchChars))
		if err != nil {
			fail(logger, "batcher", err, btm.Since(), fileID, "")
			return Outcome{}, fmt.Errorf("batcher make: %w", err)
		}
		btm.Finish("make", int64(len(batches)))
		diag.IncOp("batcher", "finish", "success")
		out.Batches = len(batches)
		if t := diag.GetTerminal(); t != nil {
			t.FileStart(fileID, len(batches))
		}

		req := contract.Request{Source: plan.Source, Target: plan.Target}
		results = make([]contract.TranslationResult, 0, len(batches))
		for _, b := range batches {
			if err := ctx.Err(); err != nil {
				return Outcome{}, err
			}
			res, err := comp.Dispatcher.Dispatch(ctx, fileID, b, req)
			out.Fallbacks = append(out.Fallbacks, res.Fallbacks...)
			if err != nil {
				fail(logger, "dispatch", err, nil, fileID, strconv.Itoa(b.Index))
				return Outcome{}, fmt.Errorf("dispatch: %w", err)
			}
			results = append(results, res)
			if t := diag.GetTerminal(); t != nil {
				t.FileProgress(len(results), len(batches), len(out.Fallbacks))
			}
		}
	}

	if plan.PostConvert != "" {
		for i := range results {
			lines, err := convertLines(comp.Converter, results[i].Lines, plan.PostConvert)
			if err != nil {
				return Outcome{}, fmt.Errorf("post-convert: %w", err)
			}
			results[i].Lines = lines
		}
	}

	mtm := logger.StartWith("reinserter", "merge", fileID, "")
	text, err := comp.Reinserter.Merge(doc, results)
	if err != nil {
		fail(logger, "reinserter", err, mtm.Since(), fileID, "")
		return Outcome{}, fmt.Errorf("reinsert: %w", err)
	}
	mtm.Finish("merge", int64(len(doc.Slots)))
	diag.IncOp("reinserter", "finish", "success")
	out.Text = text
	return out, nil
}

// ConvertVariant 仅做字形转换（无批次、无负载上限）；行结构与 CR/BOM 原样保留。
func ConvertVariant(conv contract.Converter, text, variant string) (string, error) {
	if conv == nil {
		return "", fmt.Errorf("pipeline: %w: no converter", contract.ErrInvalidInput)
	}
	bom := strings.HasPrefix(text, "\uFEFF")
	if bom {
		text = strings.TrimPrefix(text, "\uFEFF")
	}
	out, err := conv.Convert(text, variant)
	if err != nil {
		return "", err
	}
	if bom {
		out = "\uFEFF" + out
	}
	return out, nil
}

// Run 遍历输入，逐文件翻译并写出；首个失败的文件终止整个运行。
// 返回已处理文件的报告（含失败的那一个）。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) ([]FileReport, error) {
	if err := sanity(comp, set, true); err != nil {
		return nil, fmt.Errorf("sanity: %w", err)
	}
	suffix := set.OutputSuffix
	if suffix == "" {
		suffix = "." + set.Target
	}
	return iterate(ctx, comp, set, suffix, logger, func(fid contract.FileID, raw string) (Outcome, error) {
		return TranslateDocument(ctx, comp, set, string(fid), raw, logger)
	})
}

// RunConvert 遍历输入，仅做字形转换并写出。
func RunConvert(ctx context.Context, comp Components, set Settings, logger *diag.Logger) ([]FileReport, error) {
	if err := sanity(comp, set, false); err != nil {
		return nil, fmt.Errorf("sanity: %w", err)
	}
	suffix := set.OutputSuffix
	if suffix == "" {
		suffix = "." + set.Variant
	}
	return iterate(ctx, comp, set, suffix, logger, func(fid contract.FileID, raw string) (Outcome, error) {
		if t := diag.GetTerminal(); t != nil {
			t.FileStart(string(fid), 0)
		}
		tm := logger.StartWith("converter", "convert", string(fid), "")
		text, err := ConvertVariant(comp.Converter, raw, set.Variant)
		if err != nil {
			fail(logger, "converter", err, tm.Since(), string(fid), "")
			return Outcome{}, err
		}
		tm.Finish("convert", int64(utf8.RuneCountInString(text)))
		return Outcome{Text: text, Plan: lang.Plan{ConvertOnly: true, PostConvert: set.Variant}}, nil
	})
}

type processFunc func(fid contract.FileID, raw string) (Outcome, error)

func iterate(ctx context.Context, comp Components, set Settings, suffix string, logger *diag.Logger, process processFunc) ([]FileReport, error) {
	var reports []FileReport
	rtm := logger.StartWith("reader", "iterate", "", "")
	err := comp.Reader.Iterate(ctx, set.Inputs, func(fid contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		start := time.Now()
		rep := FileReport{FileID: fid, Output: contract.WithSuffix(fid, suffix)}
		ok := false
		defer func() {
			rep.Duration = time.Since(start)
			reports = append(reports, rep)
			if t := diag.GetTerminal(); t != nil {
				t.FileFinish(ok, rep.Duration)
			}
			diag.ObserveDuration("pipeline", "file", rep.Duration.Milliseconds())
		}()

		b, err := io.ReadAll(rc)
		if err != nil {
			rep.Err = err
			fail(logger, "reader", err, nil, string(fid), "")
			return fmt.Errorf("read %s: %w", fid, err)
		}
		if !utf8.Valid(b) {
			rep.Err = fmt.Errorf("%w: %s is not valid UTF-8", contract.ErrInvalidInput, fid)
			fail(logger, "reader", rep.Err, nil, string(fid), "")
			return rep.Err
		}

		rep.Outcome, err = process(fid, string(b))
		if err != nil {
			rep.Err = err
			return fmt.Errorf("%s: %w", fid, err)
		}

		wtm := logger.StartWith("writer", "write", string(rep.Output), "")
		if err := comp.Writer.Write(ctx, rep.Output, strings.NewReader(rep.Outcome.Text)); err != nil {
			rep.Err = err
			fail(logger, "writer", err, wtm.Since(), string(rep.Output), "")
			return fmt.Errorf("writer write: %w", err)
		}
		wtm.Finish("write", int64(len(rep.Outcome.Text)))
		diag.IncOp("writer", "finish", "success")
		ok = true
		return nil
	})
	if err != nil {
		return reports, fmt.Errorf("reader iterate: %w", err)
	}
	rtm.Finish("iterate", int64(len(reports)))
	return reports, nil
}

// convertLines 逐行转换；返回新切片，不修改入参。
func convertLines(conv contract.Converter, lines []string, mode string) ([]string, error) {
	if conv == nil {
		return nil, fmt.Errorf("pipeline: %w: plan needs converter %q", contract.ErrInvalidInput, mode)
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		c, err := conv.Convert(l, mode)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func fail(logger *diag.Logger, comp string, err error, since *time.Time, fileID, batch string) {
	code := diag.Classify(err)
	kv := map[string]string{}
	var ex *contract.AllBackendsExhausted
	if errors.As(err, &ex) {
		kv["attempts"] = strings.Join(ex.Attempts, ",")
	}
	logger.ErrorWithKV(comp, string(code), err.Error(), since, fileID, batch, kv)
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
}

func sanity(c Components, s Settings, translate bool) error {
	if c.Reader == nil || c.Writer == nil {
		return errors.New("pipeline: missing reader or writer")
	}
	if len(s.Inputs) == 0 {
		return errors.New("pipeline: empty inputs")
	}
	if translate {
		if c.Reinserter == nil || c.Batcher == nil || c.Dispatcher == nil {
			return errors.New("pipeline: missing components")
		}
		return nil
	}
	if c.Converter == nil || s.Variant == "" {
		return errors.New("pipeline: convert needs converter and variant")
	}
	return nil
}
