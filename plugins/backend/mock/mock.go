package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"subtrans/pkg/contract"
)

// Options: 最小调试配置（可选）。
type Options struct {
	// Prefix: 输出前缀；为空时原样回显（identity）。
	Prefix string `json:"prefix"`
	// APIKey: 仅用于节流分组（调试用），不参与任何网络请求。
	APIKey string `json:"api_key"`
	// Mode: "identity"（默认）| "prefix" | "upper"。
	// 配置了 Prefix 且未指定 Mode 时按 "prefix" 处理。
	Mode string `json:"mode,omitempty"`
}

// Backend 为无网络的确定性后端，用于联调与测试。
type Backend struct {
	name   string
	prefix string
	mode   string
}

// New 从原样 JSON 选项构造。
func New(name string, raw json.RawMessage) (contract.Backend, error) {
	var o Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("mock options: %w", err)
		}
	}
	mode := strings.ToLower(strings.TrimSpace(o.Mode))
	if mode == "" {
		mode = "identity"
		if o.Prefix != "" {
			mode = "prefix"
		}
	}
	switch mode {
	case "identity", "prefix", "upper":
	default:
		return nil, fmt.Errorf("mock: %w: unknown mode %q", contract.ErrInvalidInput, o.Mode)
	}
	if name == "" {
		name = "mock"
	}
	return &Backend{name: name, prefix: o.Prefix, mode: mode}, nil
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Translate(ctx context.Context, lines []string, req contract.Request) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		switch b.mode {
		case "prefix":
			out[i] = b.prefix + ": " + l
		case "upper":
			out[i] = strings.ToUpper(l)
		default:
			out[i] = l
		}
	}
	return out, nil
}

var _ contract.Backend = (*Backend)(nil)
