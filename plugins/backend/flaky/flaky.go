package flaky

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"subtrans/pkg/contract"
)

// Options 定义可选项。
type Options struct {
	Prefix string `json:"prefix"`
	// FailFirst: 前 N 次调用失败；<0 表示始终失败。默认 1。
	FailFirst *int `json:"fail_first,omitempty"`
	// Kind: 失败形态 rate_limited | unreachable | timeout | malformed | line_count_mismatch。默认 rate_limited。
	Kind string `json:"kind,omitempty"`
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `json:"log_path,omitempty"`
}

// Backend 是带状态的后端实现：前 FailFirst 次按 Kind 失败，之后返回前缀占位翻译。
// 用于回退链路的联调与测试。
type Backend struct {
	name      string
	prefix    string
	failFirst int
	kind      contract.TranslationKind
	logPath   string
	count     atomic.Int32
}

// New 构造 Backend。
func New(name string, raw json.RawMessage) (contract.Backend, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("flaky options: %w", err)
		}
	}
	if o.Prefix == "" {
		o.Prefix = "FLAKY"
	}
	n := 1
	if o.FailFirst != nil {
		n = *o.FailFirst
	}
	kind, err := parseKind(o.Kind)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "flaky"
	}
	return &Backend{name: name, prefix: o.Prefix, failFirst: n, kind: kind, logPath: o.LogPath}, nil
}

func parseKind(s string) (contract.TranslationKind, error) {
	switch s {
	case "", "rate_limited":
		return contract.RateLimited, nil
	case "unreachable":
		return contract.Unreachable, nil
	case "timeout":
		return contract.Timeout, nil
	case "malformed":
		return contract.Malformed, nil
	case "line_count_mismatch":
		return contract.LineCountMismatch, nil
	}
	return 0, fmt.Errorf("flaky: %w: unknown kind %q", contract.ErrInvalidInput, s)
}

func (b *Backend) Name() string { return b.name }

// Calls 返回累计调用次数。
func (b *Backend) Calls() int { return int(b.count.Load()) }

func (b *Backend) log(s string) {
	if b.logPath == "" {
		return
	}
	// 追加写入，忽略错误。
	_ = appendFile(b.logPath, s+"\n")
}

// appendFile 以追加方式写入。
func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

// Translate 实现 contract.Backend。
func (b *Backend) Translate(ctx context.Context, lines []string, req contract.Request) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := int(b.count.Add(1))
	if b.failFirst < 0 || n <= b.failFirst {
		b.log(b.kind.String())
		if b.kind == contract.LineCountMismatch {
			// 少返回一行，交由调用方校验
			return make([]string, len(lines)-min(len(lines), 1)), nil
		}
		return nil, contract.NewTranslationError(b.kind, b.name, errors.New("scripted failure"))
	}
	b.log("ok")
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = b.prefix + ": " + l
	}
	return out, nil
}

var _ contract.Backend = (*Backend)(nil)
