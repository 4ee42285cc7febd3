package linejson

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"subtrans/pkg/contract"
)

// Options 控制解码宽松度。
type Options struct {
	// Strict: 为 true 时仅接受 JSON 数组，不回退到按行切分。
	Strict bool `json:"strict"`
}

// Decoder 将 LLM 回复解析为与输入逐行对应的译文。
// 接受两种数组形态：["..", ".."] 或 [{"id":0,"text":".."}, ...]（按 id 升序）。
type Decoder struct {
	strict bool
}

func New(opts *Options) *Decoder {
	d := &Decoder{}
	if opts != nil {
		d.strict = opts.Strict
	}
	return d
}

var codeFence = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// Decode 解析回复文本；want 为期望行数。
// 无法解析返回 Malformed，行数不符返回 LineCountMismatch（Backend 由调用方回填）。
func (d *Decoder) Decode(text string, want int) ([]string, error) {
	content := strings.TrimSpace(text)
	if m := codeFence.FindStringSubmatch(content); len(m) > 1 {
		content = strings.TrimSpace(m[1])
	}
	if out, ok := parseArray(content); ok {
		if len(out) != want {
			return nil, contract.MismatchError("", want, len(out))
		}
		return out, nil
	}
	if d.strict {
		return nil, contract.NewTranslationError(contract.Malformed, "", fmt.Errorf("no json array in reply: %w", contract.ErrResponseInvalid))
	}
	// 回退：部分模型直接逐行输出
	lines := contract.SplitPayload(content)
	if len(lines) == 0 {
		return nil, contract.NewTranslationError(contract.Malformed, "", fmt.Errorf("empty reply: %w", contract.ErrResponseInvalid))
	}
	if len(lines) != want {
		return nil, contract.MismatchError("", want, len(lines))
	}
	return lines, nil
}

func parseArray(content string) ([]string, bool) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, false
	}
	body := []byte(content[start : end+1])

	var strs []string
	if err := json.Unmarshal(body, &strs); err == nil {
		return strs, true
	}
	type item struct {
		ID   int    `json:"id"`
		Text string `json:"text"`
	}
	var items []item
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, false
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Text
	}
	return out, true
}
