package greedy

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"subtrans/pkg/contract"
)

// Options 为贪心 Batcher 的可选配置。
type Options struct {
	// Unit: 长度计量单位，"rune"（默认，按字符）或 "byte"（按 UTF-8 字节）。
	Unit string `json:"unit"`
}

// Batcher 自左向右贪心累积槽位；负载长度计入 '\n' 分隔符。
type Batcher struct {
	measure func(string) int
}

// New 创建贪心 Batcher。
func New(opts *Options) (*Batcher, error) {
	unit := ""
	if opts != nil {
		unit = strings.ToLower(strings.TrimSpace(opts.Unit))
	}
	switch unit {
	case "", "rune", "char":
		return &Batcher{measure: utf8.RuneCountInString}, nil
	case "byte":
		return &Batcher{measure: func(s string) int { return len(s) }}, nil
	default:
		return nil, fmt.Errorf("greedy: %w: unknown unit %q", contract.ErrInvalidInput, opts.Unit)
	}
}

var _ contract.Batcher = (*Batcher)(nil)

// Make 按 cur+cost < maxChars 贪心切批；单个槽位达到上限时独占一批。
func (b *Batcher) Make(slots []contract.ContentSlot, maxChars int) ([]contract.Batch, error) {
	if maxChars <= 0 {
		return nil, fmt.Errorf("greedy: %w: max chars must be > 0", contract.ErrInvalidInput)
	}
	if len(slots) == 0 {
		return []contract.Batch{}, nil
	}
	sizes := make([]int, len(slots))
	total := len(slots) - 1 // 分隔符
	for i, s := range slots {
		sizes[i] = b.measure(s.Text)
		total += sizes[i]
	}
	// 快速路径：整体装得下
	if total < maxChars {
		return []contract.Batch{{Index: 0, Slots: slots, Chars: total}}, nil
	}

	var out []contract.Batch
	start, cur := 0, 0
	for i := range slots {
		if i == start {
			cur = sizes[i]
			continue
		}
		cost := sizes[i] + 1
		if cur+cost < maxChars {
			cur += cost
			continue
		}
		out = append(out, contract.Batch{Index: len(out), Slots: slots[start:i:i], Chars: cur})
		start, cur = i, sizes[i]
	}
	out = append(out, contract.Batch{Index: len(out), Slots: slots[start:len(slots):len(slots)], Chars: cur})
	return out, nil
}
