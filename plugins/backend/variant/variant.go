package variant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/longbridgeapp/opencc"

	"subtrans/pkg/contract"
)

// DefaultMode: 简体 → 繁体（台湾用词）。
const DefaultMode = "s2twp"

// Modes 为支持的转换方向。
var Modes = []string{"s2t", "t2s", "s2tw", "tw2s", "s2hk", "hk2s", "s2twp", "tw2sp"}

// Options 为 variant 后端配置。
type Options struct {
	// Mode: 作为 Backend 使用时的转换方向，默认 s2twp。
	Mode string `json:"mode"`
}

// Converter 基于 OpenCC 的字形转换；按方向缓存已加载的词典。
// 并发安全。
type Converter struct {
	mu    sync.Mutex
	cache map[string]*opencc.OpenCC
}

func NewConverter() *Converter {
	return &Converter{cache: make(map[string]*opencc.OpenCC)}
}

// Convert 按 mode 转换整段文本；换行与行数不变。
func (c *Converter) Convert(text, mode string) (string, error) {
	cc, err := c.load(mode)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", nil
	}
	// 逐行转换，保证行结构与 CR 原样保留
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		cr := strings.HasSuffix(l, "\r")
		if cr {
			l = l[:len(l)-1]
		}
		out, err := cc.Convert(l)
		if err != nil {
			return "", fmt.Errorf("opencc %s: %w", mode, err)
		}
		if cr {
			out += "\r"
		}
		lines[i] = out
	}
	return strings.Join(lines, "\n"), nil
}

func (c *Converter) load(mode string) (*opencc.OpenCC, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if !Supported(mode) {
		return nil, fmt.Errorf("variant: %w: unsupported mode %q", contract.ErrInvalidInput, mode)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cc, ok := c.cache[mode]; ok {
		return cc, nil
	}
	cc, err := opencc.New(mode)
	if err != nil {
		return nil, fmt.Errorf("opencc load %s: %w", mode, err)
	}
	c.cache[mode] = cc
	return cc, nil
}

// Supported 判断 mode 是否受支持。
func Supported(mode string) bool {
	for _, m := range Modes {
		if m == mode {
			return true
		}
	}
	return false
}

var _ contract.Converter = (*Converter)(nil)

// Backend 将 Converter 包装为后端，可直接放入回退链（仅改字形，不翻译）。
type Backend struct {
	name string
	mode string
	conv *Converter
}

// New 从原样 JSON 选项构造。
func New(name string, raw json.RawMessage) (contract.Backend, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("variant options: %w", err)
		}
	}
	if o.Mode == "" {
		o.Mode = DefaultMode
	}
	o.Mode = strings.ToLower(o.Mode)
	if !Supported(o.Mode) {
		return nil, fmt.Errorf("variant: %w: unsupported mode %q", contract.ErrInvalidInput, o.Mode)
	}
	if name == "" {
		name = "variant"
	}
	return &Backend{name: name, mode: o.Mode, conv: NewConverter()}, nil
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Translate(ctx context.Context, lines []string, req contract.Request) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		s, err := b.conv.Convert(l, b.mode)
		if err != nil {
			return nil, contract.NewTranslationError(contract.Malformed, b.name, err)
		}
		out[i] = s
	}
	return out, nil
}
