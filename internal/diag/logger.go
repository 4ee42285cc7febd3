package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// 级别定义
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// LineWriter: 日志落地目标，每次写入一整行（不含换行）。
type LineWriter interface {
	WriteLine(b []byte) error
}

// WriterSink 将任意 io.Writer 适配为 LineWriter（如 stderr）。
type WriterSink struct{ W io.Writer }

func (s WriterSink) WriteLine(b []byte) error {
	_, err := s.W.Write(append(b, '\n'))
	return err
}

// Logger 为最小结构化日志器：单行 JSON；支持级别过滤。
// nil *Logger 的全部方法为 no-op，便于组件在无日志场景下直接调用。
type Logger struct {
	corrID string
	level  Level
	sink   LineWriter
	mu     sync.Mutex
}

// NewCorrID 生成一次运行的关联 ID。
func NewCorrID() string { return uuid.NewString() }

// NewLogger 通过配置的 level 初始化，并将日志写入 logs/ 目录，10MiB 轮转。
func NewLogger(corrID, level string) *Logger {
	return NewLoggerTo(corrID, level, NewRotatingFile("logs", 10*1024*1024))
}

// NewLoggerTo 使用指定落地目标；sink 为 nil 时写 stderr。
func NewLoggerTo(corrID, level string, sink LineWriter) *Logger {
	if corrID == "" {
		corrID = NewCorrID()
	}
	return &Logger{corrID: corrID, level: ParseLevel(level), sink: sink}
}

// ParseLevel 解析级别字符串；未知值按 info 处理。
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug
	case "warn":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// CorrID 返回关联 ID。
func (l *Logger) CorrID() string {
	if l == nil {
		return ""
	}
	return l.corrID
}

// Event 为标准事件结构。
type Event struct {
	Level  string            `json:"level"`
	TS     string            `json:"ts"`
	CorrID string            `json:"corr_id"`
	Comp   string            `json:"comp"`
	Stage  string            `json:"stage"` // start|finish|fallback|error
	Code   string            `json:"code,omitempty"`
	DurMS  int64             `json:"dur_ms,omitempty"`
	Count  int64             `json:"count,omitempty"`
	FileID string            `json:"file_id,omitempty"`
	Batch  string            `json:"batch_id,omitempty"`
	Msg    string            `json:"msg"`
	KV     map[string]string `json:"kv,omitempty"`
}

func (l *Logger) log(lv Level, ev Event) {
	if l == nil || lv < l.level {
		return
	}
	ev.Level = lv.String()
	ev.TS = NowUTC()
	ev.CorrID = l.corrID
	b, _ := json.Marshal(ev)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink == nil {
		_, _ = os.Stderr.Write(append(b, '\n'))
		return
	}
	if err := l.sink.WriteLine(b); err != nil {
		fmt.Fprintf(os.Stderr, "logger sink error: %v\n", err)
		_, _ = os.Stderr.Write(append(b, '\n'))
	}
}

// StartWith 记录带 file_id/batch_id 的 start；返回计时器用于 Finish。
func (l *Logger) StartWith(comp, msg, fileID, batch string) *Timer {
	return l.StartWithKV(comp, msg, fileID, batch, nil)
}

// StartWithKV 记录带 file_id/batch_id 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, fileID, batch string, kv map[string]string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", FileID: fileID, Batch: batch, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, fileID: fileID, batch: batch, t0: time.Now()}
}

// WarnWithKV 记录可恢复的异常（如回退、解析降级）。
func (l *Logger) WarnWithKV(comp, stage, code, msg, fileID, batch string, kv map[string]string) {
	l.log(Warn, Event{Comp: comp, Stage: stage, Code: code, Msg: msg, FileID: fileID, Batch: batch, KV: kv})
}

// ErrorWith 记录 error 事件（不采样）。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, fileID, batch string) {
	l.ErrorWithKV(comp, code, msg, durSince, fileID, batch, nil)
}

// ErrorWithKV 支持附带键值对（例如 HTTP 状态码、上游错误片段）。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, fileID, batch string, kv map[string]string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg, FileID: fileID, Batch: batch, KV: kv})
}

// DebugWithKV 输出调试级别事件（仅在 level=debug 时生效）。
func (l *Logger) DebugWithKV(comp, stage, msg, fileID, batch string, kv map[string]string) {
	l.log(Debug, Event{Comp: comp, Stage: stage, FileID: fileID, Batch: batch, Msg: msg, KV: kv})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l      *Logger
	comp   string
	fileID string
	batch  string
	t0     time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	dur := time.Since(t.t0).Milliseconds()
	t.l.log(Info, Event{Comp: t.comp, Stage: "finish", DurMS: dur, Count: count, FileID: t.fileID, Batch: t.batch, Msg: msg})
	ObserveDuration(t.comp, "finish", dur)
}

// Since 返回计时起点（供 ErrorWith 计算耗时）。
func (t *Timer) Since() *time.Time {
	if t == nil {
		return nil
	}
	return &t.t0
}
