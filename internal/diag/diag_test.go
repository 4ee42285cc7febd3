package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"subtrans/pkg/contract"
)

// 日志轮转写入
func TestRotatingFile(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 30)
	if err := w.WriteLine([]byte("first line that is very long")); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if err := w.WriteLine([]byte("second")); err != nil {
		t.Fatalf("第二次写入失败: %v", err)
	}
	defer w.Close()
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败: %v", err)
	}
	hasCurrent, hasRotated := false, false
	for _, e := range ents {
		switch {
		case e.Name() == "subtrans-current.txt":
			hasCurrent = true
		case strings.HasPrefix(e.Name(), "subtrans-") && strings.HasSuffix(e.Name(), ".txt"):
			hasRotated = true
		}
	}
	if !hasCurrent || !hasRotated {
		t.Fatalf("应同时存在当前文件与轮转文件: current=%v rotated=%v", hasCurrent, hasRotated)
	}
}

// 历史文件只保留最近 keep 个
func TestRotatingFileKeep(t *testing.T) {
	dir := t.TempDir()
	w := NewRotatingFile(dir, 8).WithKeep(2)
	defer w.Close()
	for i := 0; i < 6; i++ {
		if err := w.WriteLine([]byte(fmt.Sprintf("line-%d", i))); err != nil {
			t.Fatalf("写入失败: %v", err)
		}
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	hist := 0
	for _, e := range ents {
		if e.Name() != "subtrans-current.txt" {
			hist++
		}
	}
	if hist != 2 {
		t.Fatalf("历史文件应为 2 个，实际 %d", hist)
	}
	cur, err := os.ReadFile(filepath.Join(dir, "subtrans-current.txt"))
	if err != nil || string(cur) != "line-5\n" {
		t.Fatalf("当前文件内容错误: %q %v", cur, err)
	}
}

// 默认 maxBytes 与 f==nil 时的 rotate 分支
func TestRotatingFileDefaultsAndRotateNoOpen(t *testing.T) {
	w := NewRotatingFile(t.TempDir(), 0)
	if err := w.WriteLine([]byte("a")); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()
	if err := w.rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	w.Close()
}

// 指标计数与快照
func TestMetricsSnapshot(t *testing.T) {
	ResetMetrics()
	IncOp("dispatch", "batch", "success")
	IncOp("dispatch", "batch", "success")
	IncError("dispatch", "network")
	IncFallback("google", "unreachable")
	ObserveDuration("pipeline", "finish", 5)
	got := map[string]int64{}
	for _, s := range Snapshot() {
		got[s.Name+"|"+s.Key] = s.Value
	}
	want := map[string]int64{
		"op_total|dispatch/batch/success":   2,
		"error_total|dispatch/network":      1,
		"fallback_total|google/unreachable": 1,
		"op_duration_ms|pipeline/finish":    5,
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %d, 预期 %d (全部: %v)", k, got[k], v, got)
		}
	}
	ResetMetrics()
	if len(Snapshot()) != 0 {
		t.Fatalf("重置后应为空")
	}
}

// 错误分类
func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{contract.ErrResponseInvalid, CodeProtocol},
		{context.Canceled, CodeCancel},
		{&fs.PathError{Op: "open", Path: "/", Err: errors.New("x")}, CodeIO},
		{&net.DNSError{Err: "x"}, CodeNetwork},
		{contract.ErrRateLimited, CodeBudget},
		{contract.NewTranslationError(contract.RateLimited, "g", nil), CodeBudget},
		{contract.MismatchError("g", 2, 1), CodeProtocol},
		{contract.NewTranslationError(contract.Timeout, "g", context.DeadlineExceeded), CodeNetwork},
		{&contract.AllBackendsExhausted{Batch: 0, Last: contract.MismatchError("g", 2, 1)}, CodeExhausted},
		{&contract.StructuralIntegrityError{Batch: -1}, CodeInvariant},
		{fmt.Errorf("w: %w", contract.ErrLocked), CodeIO},
		{errors.New("other"), CodeUnknown},
		{nil, CodeUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Fatalf("Classify(%v) = %s, 预期 %s", c.err, got, c.want)
		}
	}
}

// Logger 写出 JSON 行并按级别过滤
func TestLoggerEvents(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo("corr", "info", WriterSink{W: &buf})
	tm := l.StartWith("pipeline", "translate", "a.srt", "")
	tm.Finish("ok", 3)
	l.DebugWithKV("dispatch", "attempt", "filtered", "a.srt", "0", nil)
	l.WarnWithKV("dispatch", "fallback", "network", "google failed", "a.srt", "0", map[string]string{"kind": "unreachable"})
	l.ErrorWith("pipeline", "exhausted", "boom", tm.Since(), "a.srt", "0")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("预期 4 行（debug 被过滤），实际 %d: %s", len(lines), buf.String())
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[2]), &ev); err != nil {
		t.Fatalf("非 JSON 行: %v", err)
	}
	if ev.Level != "warn" || ev.Stage != "fallback" || ev.CorrID != "corr" || ev.KV["kind"] != "unreachable" {
		t.Fatalf("事件字段错误: %+v", ev)
	}
}

// nil Logger / Timer 为 no-op
func TestLoggerNil(t *testing.T) {
	var l *Logger
	l.StartWith("c", "m", "", "").Finish("x", 0)
	l.ErrorWith("c", "code", "m", nil, "", "")
	l.WarnWithKV("c", "s", "code", "m", "", "", nil)
	if l.CorrID() != "" {
		t.Fatalf("nil logger corr id 应为空")
	}
	var tn *Timer
	tn.Finish("x", 0)
	if tn.Since() != nil {
		t.Fatalf("nil timer since 应为 nil")
	}
}

// 默认目录写入与自动关联 ID
func TestLoggerDefaultSink(t *testing.T) {
	dir := t.TempDir()
	l := NewLoggerTo("", "debug", NewRotatingFile(dir, 0))
	if l.CorrID() == "" {
		t.Fatalf("应自动生成关联 ID")
	}
	l.StartWith("c", "m", "", "").Finish("ok", 1)
	if _, err := os.Stat(filepath.Join(dir, "subtrans-current.txt")); err != nil {
		t.Fatalf("log file not found: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel(" WARN ") != Warn || ParseLevel("bogus") != Info || ParseLevel("debug") != Debug {
		t.Fatalf("级别解析错误")
	}
	var unknown Level = 12345
	if unknown.String() != "info" {
		t.Fatalf("default string")
	}
}

// 终端（非 TTY）关键节点输出
func TestTerminalNonTTYFlow(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	if term.isTTY {
		t.Fatalf("expect non-tty")
	}
	term.RunStart("google,openai", "en")
	term.FileStart("subs/ep01.srt", 12)
	term.FileProgress(6, 12, 0) // 非 TTY：不输出进度
	term.FileFinish(true, 5100*time.Millisecond)
	term.RunFinish(true, 41300*time.Millisecond)

	out := sb.String()
	if strings.Contains(out, "\r") {
		t.Fatalf("non-tty should not contain carriage returns: %q", out)
	}
	for _, want := range []string{
		"[run] 后端=google,openai | 目标=en",
		"[file] ep01.srt | 计划批次=12",
		"[done] ep01.srt | 批次 12 | 总用时 5.1s",
		"[ok] 全部完成 | 文件 1 | 总用时 41.3s",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("缺少 %q: %q", want, out)
		}
	}
}

// 终端（TTY）进度节流与清尾
func TestTerminalTTYProgressThrottleAndClear(t *testing.T) {
	var sb strings.Builder
	term := NewTerminal(&sb, true)
	term.isTTY = true
	term.RunStart("mock", "en")
	term.FileStart("/a/b/c/longfilename.txt", 3)

	term.FileProgress(1, 3, 0)
	first := sb.String()
	if !strings.Contains(first, "\r[") {
		t.Fatalf("first progress should be inline with CR: %q", first)
	}
	term.FileProgress(2, 3, 1)
	if sb.String() != first {
		t.Fatalf("second progress should be throttled")
	}
	time.Sleep(120 * time.Millisecond)
	term.FileProgress(2, 3, 1)
	if len(sb.String()) <= len(first) {
		t.Fatalf("third progress should append output")
	}
	term.FileFinish(false, 2200*time.Millisecond)
	final := sb.String()
	idx := strings.LastIndex(final, "[fail]")
	if idx < 0 {
		t.Fatalf("finish should include fail line: %q", final)
	}
	seg := final[:idx]
	cr := strings.LastIndex(seg, "\r")
	if cr < 0 || !strings.Contains(seg[cr+1:], " ") {
		t.Fatalf("清尾应以回车加空格覆盖: %q", seg)
	}
}

// 写失败降级为禁用态
type flakyWriter struct{ fail bool }

func (w *flakyWriter) Write(p []byte) (int, error) {
	if w.fail {
		w.fail = false
		return 0, fmt.Errorf("boom")
	}
	return len(p), nil
}

func TestTerminalDisableOnWriteError(t *testing.T) {
	term := NewTerminal(&flakyWriter{fail: true}, true)
	term.RunStart("x", "en")
	if term.enabled {
		t.Fatalf("terminal should be disabled after write error")
	}
	term.FileStart("a", 0)
	term.FileProgress(0, 0, 0)
	term.FileFinish(true, 0)
	term.RunFinish(true, 0)

	var tn *Terminal
	tn.RunStart("x", "en")
	tn.FileFinish(true, 0)
}

func TestNewTerminalCIEnv(t *testing.T) {
	t.Setenv("CI", "true")
	if NewTerminal(os.Stderr, true).isTTY {
		t.Fatalf("CI env should force non-tty")
	}
}

func TestHelpers(t *testing.T) {
	if got := shortenBase("/x/y/这是一个很长的文件名用于截断测试abcdefghijk.txt", 10); len([]rune(got)) != 10 || !strings.HasSuffix(got, "…") {
		t.Fatalf("shortenBase 截断错误: %q", got)
	}
	if shortenBase("x", 0) != "" {
		t.Fatalf("shortenBase max<=0 should be empty")
	}
	if safe("a\nb\rc") != "a b c" {
		t.Fatalf("safe replace failed")
	}
	if formatDur(0) != "0ms" || formatDur(1500*time.Millisecond) != "1.5s" {
		t.Fatalf("formatDur 错误")
	}
	SetTerminal(nil)
	if GetTerminal() != nil {
		t.Fatalf("expected nil terminal")
	}
	SetTerminal(NewTerminal(os.Stderr, false))
	if GetTerminal() == nil {
		t.Fatalf("expected non-nil terminal")
	}
	SetTerminal(nil)
	if NowUTC() == "" {
		t.Fatalf("应返回时间字符串")
	}
}
