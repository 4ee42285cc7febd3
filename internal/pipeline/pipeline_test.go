package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	"subtrans/internal/diag"
	"subtrans/internal/dispatch"
	"subtrans/pkg/contract"
	"subtrans/plugins/assembler/skeleton"
	"subtrans/plugins/backend/flaky"
	"subtrans/plugins/backend/mock"
	"subtrans/plugins/batcher/greedy"
	"subtrans/plugins/tokenizer/plain"
	"subtrans/plugins/tokenizer/srt"
)

// 通用桩件 ----------------------------------------------------
type memReader map[string]string

func (m memReader) Iterate(ctx context.Context, roots []string, yield func(contract.FileID, io.ReadCloser) error) error {
	for _, r := range roots {
		if err := yield(contract.FileID(r), io.NopCloser(strings.NewReader(m[r]))); err != nil {
			return err
		}
	}
	return nil
}

type memWriter struct{ out map[contract.FileID]string }

func (w *memWriter) Write(ctx context.Context, id contract.FileID, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if w.out == nil {
		w.out = map[contract.FileID]string{}
	}
	w.out[id] = string(b)
	return nil
}

// tagConverter: 以 "[mode]" 前缀标记转换，便于断言转换发生的位置
type tagConverter struct{ modes []string }

func (c *tagConverter) Convert(text, mode string) (string, error) {
	if mode == "bad" {
		return "", contract.ErrInvalidInput
	}
	c.modes = append(c.modes, mode)
	return "[" + mode + "]" + text, nil
}

// capture: 记录收到的请求与批
type capture struct {
	reqs    []contract.Request
	batches [][]string
}

func (c *capture) Name() string { return "capture" }
func (c *capture) Translate(ctx context.Context, lines []string, req contract.Request) ([]string, error) {
	c.reqs = append(c.reqs, req)
	c.batches = append(c.batches, append([]string(nil), lines...))
	return append([]string(nil), lines...), nil
}

func mustBackend(t *testing.T, f func(string, json.RawMessage) (contract.Backend, error), name, raw string) contract.Backend {
	t.Helper()
	b, err := f(name, json.RawMessage(raw))
	if err != nil {
		t.Fatalf("构造后端 %s 失败: %v", name, err)
	}
	return b
}

func components(t *testing.T, backends ...contract.Backend) Components {
	t.Helper()
	specs := make([]contract.BackendSpec, len(backends))
	for i, b := range backends {
		specs[i] = contract.BackendSpec{Name: b.Name(), Priority: i, Backend: b}
	}
	d, err := dispatch.New(specs, nil, nil)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	bt, _ := greedy.New(nil)
	rs, _ := skeleton.New(nil)
	return Components{
		Tokenizers: map[contract.Format]contract.Tokenizer{contract.Srt: srt.New(nil), contract.PlainText: plain.New()},
		Batcher:    bt,
		Dispatcher: d,
		Reinserter: rs,
		Converter:  &tagConverter{},
	}
}

func settings(format contract.Format, max int) Settings {
	return Settings{Format: format, Source: "auto", Target: "en", MaxBatchChars: max}
}

// 场景：单条 SRT 字幕，恒等后端原样返回
func TestTranslateSrtIdentityScenario(t *testing.T) {
	in := "1\n00:00:01,000 --> 00:00:02,000\n你好\n\n"
	comp := components(t, mustBackend(t, mock.New, "mock", ""))
	out, err := TranslateDocument(context.Background(), comp, settings(contract.Srt, 4500), "a.srt", in, nil)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out.Text != in {
		t.Fatalf("输出应与输入一致:\n got %q\nwant %q", out.Text, in)
	}
	if out.Batches != 1 || len(out.Fallbacks) != 0 {
		t.Fatalf("批次/回退统计错误: %+v", out)
	}
}

// 场景：纯文本两行，上限 100 → 单批 ["你好","世界"]
func TestTranslatePlainSingleBatch(t *testing.T) {
	c := &capture{}
	comp := components(t, c)
	out, err := TranslateDocument(context.Background(), comp, settings(contract.PlainText, 100), "a.txt", "你好\n世界", nil)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out.Text != "你好\n世界" || out.Batches != 1 {
		t.Fatalf("结果错误: %+v", out)
	}
	if !reflect.DeepEqual(c.batches, [][]string{{"你好", "世界"}}) {
		t.Fatalf("批内容错误: %q", c.batches)
	}
}

// 往返律：恒等后端对任意文档（含 CRLF/BOM/空行/不规范 SRT）逐字节还原
func TestTranslateRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		format contract.Format
		in     string
	}{
		{"srt 规范", contract.Srt, "1\n00:00:01,000 --> 00:00:02,000\nhello\nworld\n\n2\n00:00:03,000 --> 00:00:04,000\nbye\n"},
		{"srt CRLF", contract.Srt, "1\r\n00:00:01,000 --> 00:00:02,000\r\nhello\r\n\r\n"},
		{"srt BOM", contract.Srt, "\uFEFF1\n00:00:01,000 --> 00:00:02,000\nhi\n\n"},
		{"srt 缺空行", contract.Srt, "1\n00:00:01,000 --> 00:00:02,000\na\n2\n00:00:02,000 --> 00:00:03,000\nb"},
		{"srt 块外文本", contract.Srt, "stray\n\n\n1\n00:00:01,000 --> 00:00:02,000\nx\n"},
		{"plain 空行连续", contract.PlainText, "a\n\n\n  \nb\n"},
		{"plain 空文档", contract.PlainText, ""},
		{"plain CRLF+BOM", contract.PlainText, "\uFEFFa\r\nb\r\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			comp := components(t, mustBackend(t, mock.New, "mock", ""))
			for _, max := range []int{3, 4500} {
				out, err := TranslateDocument(context.Background(), comp, settings(tc.format, max), "f", tc.in, nil)
				if err != nil {
					t.Fatalf("max=%d translate: %v", max, err)
				}
				if out.Text != tc.in {
					t.Fatalf("max=%d 未还原:\n got %q\nwant %q", max, out.Text, tc.in)
				}
			}
		})
	}
}

// 多批：小上限切出多个批，序号/时间轴行不变，只替换内容行
func TestTranslateMultiBatchPrefix(t *testing.T) {
	in := "1\n00:00:01,000 --> 00:00:02,000\nalpha\n\n2\n00:00:02,000 --> 00:00:03,000\nbeta\n\n3\n00:00:03,000 --> 00:00:04,000\ngamma\n"
	comp := components(t, mustBackend(t, mock.New, "mock", `{"prefix":"T"}`))
	out, err := TranslateDocument(context.Background(), comp, settings(contract.Srt, 8), "f", in, nil)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	want := strings.NewReplacer("alpha", "T: alpha", "beta", "T: beta", "gamma", "T: gamma").Replace(in)
	if out.Text != want {
		t.Fatalf("输出错误:\n got %q\nwant %q", out.Text, want)
	}
	if out.Batches != 3 {
		t.Fatalf("应切为 3 批，实际 %d", out.Batches)
	}
}

// 场景：首个后端不可达，第二个成功 → 使用第二个的结果并记录回退
func TestTranslateFallback(t *testing.T) {
	bad := mustBackend(t, flaky.New, "down", `{"fail_first":-1,"kind":"unreachable"}`)
	ok := mustBackend(t, mock.New, "ok", `{"prefix":"OK"}`)
	comp := components(t, bad, ok)
	out, err := TranslateDocument(context.Background(), comp, settings(contract.PlainText, 4500), "f", "a\nb", nil)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out.Text != "OK: a\nOK: b" {
		t.Fatalf("输出错误: %q", out.Text)
	}
	if len(out.Fallbacks) != 1 || out.Fallbacks[0].Backend != "down" || out.Fallbacks[0].Kind != contract.Unreachable {
		t.Fatalf("回退记录错误: %+v", out.Fallbacks)
	}
}

// 行数不一致的后端结果绝不回填
func TestTranslateLineCountMismatchFailover(t *testing.T) {
	short := mustBackend(t, flaky.New, "short", `{"fail_first":-1,"kind":"line_count_mismatch"}`)
	ok := mustBackend(t, mock.New, "ok", "")
	comp := components(t, short, ok)
	out, err := TranslateDocument(context.Background(), comp, settings(contract.PlainText, 4500), "f", "x\ny\nz", nil)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out.Text != "x\ny\nz" || out.Fallbacks[0].Kind != contract.LineCountMismatch {
		t.Fatalf("结果错误: %+v", out)
	}
}

// 全部失败：整篇失败，Run 不写出任何文件
func TestRunExhaustedWritesNothing(t *testing.T) {
	comp := components(t, mustBackend(t, flaky.New, "f1", `{"fail_first":-1,"kind":"timeout"}`))
	comp.Reader = memReader{"a.txt": "hello"}
	w := &memWriter{}
	comp.Writer = w
	set := settings(contract.PlainText, 4500)
	set.Inputs = []string{"a.txt"}
	reps, err := Run(context.Background(), comp, set, nil)
	var ex *contract.AllBackendsExhausted
	if !errors.As(err, &ex) {
		t.Fatalf("预期 AllBackendsExhausted，得到 %v", err)
	}
	if len(w.out) != 0 {
		t.Fatalf("失败时不应写出: %v", w.out)
	}
	if len(reps) != 1 || reps[0].Err == nil {
		t.Fatalf("应记录失败报告: %+v", reps)
	}
}

// 取消：不调用后端，直接返回 ctx 错误
func TestTranslateCanceled(t *testing.T) {
	c := &capture{}
	comp := components(t, c)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := TranslateDocument(ctx, comp, settings(contract.PlainText, 4500), "f", "a", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("预期 context.Canceled，得到 %v", err)
	}
	if len(c.batches) != 0 {
		t.Fatalf("取消后不应派发")
	}
}

// 繁体目标：向后端请求 zh-CN，再对译文做 s2twp 转换
func TestTranslateTraditionalTarget(t *testing.T) {
	c := &capture{}
	comp := components(t, c)
	set := settings(contract.PlainText, 4500)
	set.Target = "zh-TW"
	out, err := TranslateDocument(context.Background(), comp, set, "f", "hello\n\nworld", nil)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if c.reqs[0].Target != "zh-CN" {
		t.Fatalf("应以 zh-CN 请求后端: %+v", c.reqs[0])
	}
	if out.Text != "[s2twp]hello\n\n[s2twp]world" {
		t.Fatalf("输出错误: %q", out.Text)
	}
}

// 繁体源：翻译前先转简体，源语言改为 zh-CN
func TestTranslateTraditionalSource(t *testing.T) {
	c := &capture{}
	comp := components(t, c)
	set := settings(contract.PlainText, 4500)
	set.Source = "zh-TW"
	if _, err := TranslateDocument(context.Background(), comp, set, "f", "漢字", nil); err != nil {
		t.Fatalf("translate: %v", err)
	}
	if c.reqs[0].Source != "zh-CN" || c.batches[0][0] != "[tw2s]漢字" {
		t.Fatalf("预转换错误: %+v %q", c.reqs, c.batches)
	}
}

// 同语言字形变体：只转换，不经后端
func TestTranslateConvertOnly(t *testing.T) {
	c := &capture{}
	comp := components(t, c)
	set := settings(contract.Srt, 4500)
	set.Source, set.Target = "zh-CN", "zh-TW"
	in := "1\n00:00:01,000 --> 00:00:02,000\n汉字\n"
	out, err := TranslateDocument(context.Background(), comp, set, "f", in, nil)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(c.batches) != 0 {
		t.Fatalf("仅转换时不应调用后端")
	}
	if out.Text != "1\n00:00:01,000 --> 00:00:02,000\n[s2twp]汉字\n" || !out.Plan.ConvertOnly {
		t.Fatalf("输出错误: %q", out.Text)
	}
}

// 转换失败：整篇失败
func TestTranslateConvertError(t *testing.T) {
	comp := components(t, &capture{})
	set := settings(contract.PlainText, 4500)
	set.Target, set.Variant = "zh-TW", "bad"
	if _, err := TranslateDocument(context.Background(), comp, set, "f", "a", nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("预期转换错误，得到 %v", err)
	}
}

func TestTranslateInvalidSettings(t *testing.T) {
	comp := components(t, &capture{})
	if _, err := TranslateDocument(context.Background(), comp, settings("xml", 10), "f", "a", nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("未知格式应报错: %v", err)
	}
	set := settings(contract.PlainText, 10)
	set.Target = ""
	if _, err := TranslateDocument(context.Background(), comp, set, "f", "a", nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("空目标应报错: %v", err)
	}
}

// ConvertVariant 保留 BOM，仅转换正文
func TestConvertVariant(t *testing.T) {
	conv := &tagConverter{}
	got, err := ConvertVariant(conv, "\uFEFF汉字", "s2t")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got != "\uFEFF[s2t]汉字" {
		t.Fatalf("结果错误: %q", got)
	}
	if _, err := ConvertVariant(nil, "x", "s2t"); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("缺少转换器应报错")
	}
}

// Run 按后缀写出并汇总报告
func TestRunWritesSuffixedOutput(t *testing.T) {
	comp := components(t, mustBackend(t, mock.New, "mock", `{"mode":"upper"}`))
	comp.Reader = memReader{"dir/a.txt": "hi", "dir/b.txt": "yo"}
	w := &memWriter{}
	comp.Writer = w
	set := settings(contract.PlainText, 4500)
	set.Inputs = []string{"dir/a.txt", "dir/b.txt"}
	logger := diag.NewLoggerTo("t", "debug", diag.WriterSink{W: io.Discard})
	reps, err := Run(context.Background(), comp, set, logger)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if w.out["dir/a.en.txt"] != "HI" || w.out["dir/b.en.txt"] != "YO" {
		t.Fatalf("写出错误: %v", w.out)
	}
	if len(reps) != 2 || reps[0].Output != "dir/a.en.txt" || reps[1].Err != nil {
		t.Fatalf("报告错误: %+v", reps)
	}
}

// 非 UTF-8 输入拒绝处理
func TestRunRejectsInvalidUTF8(t *testing.T) {
	comp := components(t, &capture{})
	comp.Reader = memReader{"a.txt": "\xff\xfe"}
	comp.Writer = &memWriter{}
	set := settings(contract.PlainText, 4500)
	set.Inputs = []string{"a.txt"}
	if _, err := Run(context.Background(), comp, set, nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("预期 ErrInvalidInput，得到 %v", err)
	}
}

func TestRunConvert(t *testing.T) {
	comp := Components{Converter: &tagConverter{}, Reader: memReader{"a.srt": "x"}}
	w := &memWriter{}
	comp.Writer = w
	set := Settings{Inputs: []string{"a.srt"}, Variant: "s2hk"}
	reps, err := RunConvert(context.Background(), comp, set, nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if w.out["a.s2hk.srt"] != "[s2hk]x" || len(reps) != 1 {
		t.Fatalf("写出错误: %v", w.out)
	}
	if _, err := RunConvert(context.Background(), comp, Settings{Inputs: []string{"a.srt"}}, nil); err == nil {
		t.Fatalf("缺少变体应报错")
	}
}

func TestRunSanity(t *testing.T) {
	if _, err := Run(context.Background(), Components{}, Settings{}, nil); err == nil {
		t.Fatalf("缺少组件应报错")
	}
}
