package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	logPrefix  = "subtrans-"
	currentLog = logPrefix + "current.txt"
	// defaultKeep: 保留的历史文件个数。
	defaultKeep = 5
)

// RotatingFile 将日志行追加到 <dir>/subtrans-current.txt，超过 maxBytes 前轮转为
// subtrans-<UTC 时间戳>.txt，并只保留最近 keep 个历史文件。
type RotatingFile struct {
	dir      string
	maxBytes int64
	keep     int

	mu      sync.Mutex
	f       *os.File
	curSize int64
}

// NewRotatingFile: maxBytes<=0 使用 10MiB。
func NewRotatingFile(dir string, maxBytes int64) *RotatingFile {
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	return &RotatingFile{dir: dir, maxBytes: maxBytes, keep: defaultKeep}
}

// WithKeep 设置历史文件保留个数；<=0 表示不清理。
func (w *RotatingFile) WithKeep(n int) *RotatingFile {
	w.mu.Lock()
	w.keep = n
	w.mu.Unlock()
	return w
}

func (w *RotatingFile) WriteLine(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return err
	}
	// 空文件不轮转：单行超过上限时仍写入当前文件
	if need := int64(len(b) + 1); w.curSize > 0 && w.curSize+need > w.maxBytes {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	n, err := w.f.Write(append(b, '\n'))
	w.curSize += int64(n)
	return err
}

func (w *RotatingFile) ensureOpen() error {
	if w.f != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(w.dir, currentLog), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f, w.curSize = f, 0
	if st, err := f.Stat(); err == nil {
		w.curSize = st.Size()
	}
	return nil
}

func (w *RotatingFile) rotate() error {
	if w.f == nil {
		return w.ensureOpen()
	}
	_ = w.f.Close()
	w.f = nil
	// 纳秒精度，避免同秒冲突覆盖
	ts := time.Now().UTC().Format("20060102-150405.000000000")
	rotated := filepath.Join(w.dir, fmt.Sprintf("%s%s.txt", logPrefix, ts))
	if err := os.Rename(filepath.Join(w.dir, currentLog), rotated); err != nil {
		return fmt.Errorf("rename rotated file: %w", err)
	}
	w.prune()
	return w.ensureOpen()
}

// prune 删除超出保留个数的最旧历史文件；时间戳命名保证字典序即时间序。
func (w *RotatingFile) prune() {
	if w.keep <= 0 {
		return
	}
	ents, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	var hist []string
	for _, e := range ents {
		n := e.Name()
		if n != currentLog && strings.HasPrefix(n, logPrefix) && strings.HasSuffix(n, ".txt") {
			hist = append(hist, n)
		}
	}
	if len(hist) <= w.keep {
		return
	}
	sort.Strings(hist)
	for _, n := range hist[:len(hist)-w.keep] {
		_ = os.Remove(filepath.Join(w.dir, n))
	}
}

// Close 关闭当前文件句柄；之后的写入会重新打开。
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
