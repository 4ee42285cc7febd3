package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Terminal 在终端上给出运行进度，与结构化日志互不影响。
// TTY 下单行 \r 覆盖刷新，非 TTY 只在关键节点分行打印。
// 任一次写失败后转为禁用态，之后所有调用为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	backends  string
	target    string
	filesDone int
	runStart  time.Time

	// 当前文件
	curFileID    string // 短名（base + 截断）
	batchesTotal int
	batchesDone  int
	fallbacks    int

	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

const progressEvery = 100 * time.Millisecond

// 进程级终端（可选，全局设置后供 pipeline 旁路调用）。
var (
	termMu sync.RWMutex
	term   *Terminal
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); term = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return term }

// NewTerminal 构造终端提示器。enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI 环境视为非 TTY
	if os.Getenv("CI") == "" {
		if f, ok := w.(*os.File); ok {
			t.isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}
	return t
}

// locked 在持锁且启用时执行 fn；nil 或禁用态直接返回。
func (t *Terminal) locked(fn func()) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled {
		fn()
	}
}

// RunStart: 记录运行上下文（后端链、目标语言）。
func (t *Terminal) RunStart(backends, target string) {
	t.locked(func() {
		t.backends, t.target = backends, target
		t.filesDone = 0
		t.runStart = time.Now()
		t.println(fmt.Sprintf("[run] 后端=%s | 目标=%s", safe(backends), safe(target)))
	})
}

// FileStart: 标记当前文件与计划批次。非 TTY 下立即打印一行。
func (t *Terminal) FileStart(fileID string, batchesTotal int) {
	t.locked(func() {
		t.curFileID = shortenBase(fileID, 48)
		t.batchesTotal, t.batchesDone, t.fallbacks = batchesTotal, 0, 0
		if !t.isTTY {
			t.println(fmt.Sprintf("[file] %s | 计划批次=%d", t.curFileID, batchesTotal))
		}
	})
}

// FileProgress 仅在 TTY 下刷新，间隔不足 progressEvery 时丢弃。
func (t *Terminal) FileProgress(done, total, fallbacks int) {
	t.locked(func() {
		if !t.isTTY {
			return
		}
		t.batchesDone, t.batchesTotal, t.fallbacks = done, total, fallbacks
		now := time.Now()
		if now.Sub(t.lastFlush) < progressEvery {
			return
		}
		t.lastFlush = now
		t.printInline(fmt.Sprintf("[file] %s | 进度 %d/%d | 回退 %d | 用时 %s",
			t.curFileID, t.batchesDone, t.batchesTotal, t.fallbacks, formatDur(time.Since(t.runStart))))
	})
}

func (t *Terminal) FileFinish(ok bool, dur time.Duration) {
	t.locked(func() {
		t.filesDone++
		if t.isTTY && t.lastLen > 0 {
			t.printInline("")
		}
		t.println(fmt.Sprintf("[%s] %s | 批次 %d | 总用时 %s", pick(ok, "done", "fail"), t.curFileID, t.batchesTotal, formatDur(dur)))
	})
}

func (t *Terminal) RunFinish(ok bool, dur time.Duration) {
	t.locked(func() {
		t.println(fmt.Sprintf("[%s] 全部完成 | 文件 %d | 总用时 %s", pick(ok, "ok", "fail"), t.filesDone, formatDur(dur)))
	})
}

func pick(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

func (t *Terminal) println(s string) {
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		t.enabled = false
	}
	t.lastLen = 0
}

// printInline: \r + 内容；新行较短时以空格覆盖旧尾部。
func (t *Terminal) printInline(s string) {
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	b.WriteString(strings.Repeat(" ", pad))
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase: 取基名并按 rune 截断（尾部省略号）。
func shortenBase(s string, max int) string {
	if max <= 0 {
		return ""
	}
	base := filepath.Base(strings.TrimSpace(s))
	rs := []rune(base)
	if len(rs) <= max {
		return base
	}
	return string(rs[:max-1]) + "…"
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
