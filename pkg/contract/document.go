package contract

import (
	"fmt"
	"strings"
)

// FileID: 逻辑文档ID（通常为路径，需规范化，跨平台一致）。
type FileID string

// Format: 输入文档格式，由调用方显式给出（不做自动探测）。
type Format string

const (
	PlainText Format = "plain"
	Srt       Format = "srt"
)

// ParseFormat 解析配置中的格式名（大小写不敏感）。
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "srt":
		return Srt, nil
	case "plain", "text", "txt":
		return PlainText, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", ErrInvalidInput, s)
	}
}

// Kind: 骨架行分类。
type Kind int

const (
	KindIndex Kind = iota
	KindTimecode
	KindBlank
	KindContent
)

func (k Kind) String() string {
	switch k {
	case KindIndex:
		return "index"
	case KindTimecode:
		return "timecode"
	case KindBlank:
		return "blank"
	case KindContent:
		return "content"
	default:
		return "unknown"
	}
}

// SkeletonLine: 文档中的一行物理行。
// 约束：
// - Kind != KindContent 时 Literal 原样透传，不参与翻译；
// - Kind == KindContent 时 Literal 为空，由回填阶段以译文替换；
// - CR 记录被剥离的行尾 '\r'，输出时恢复。
type SkeletonLine struct {
	Position int
	Kind     Kind
	Literal  string
	CR       bool
}

// ContentSlot: 一条可翻译行；Position 指向所属 SkeletonLine。
// 槽位顺序即回填时的连接键（不按内容匹配）。
type ContentSlot struct {
	Position int
	Text     string
}

// Document: 分词结果（单次调用内有效，不跨调用持久化）。
type Document struct {
	Format   Format
	Skeleton []SkeletonLine
	Slots    []ContentSlot
	// BOM: 输入首部是否带 UTF-8 BOM（输出时恢复）。
	BOM bool
	// Degradations: 非致命的解析降级记录。
	Degradations []ParseDegraded
}

// Texts 返回槽位文本的有序副本。
func (d Document) Texts() []string {
	out := make([]string, len(d.Slots))
	for i, s := range d.Slots {
		out[i] = s.Text
	}
	return out
}

// Tokenizer: 将原始文本解析为骨架 + 内容槽位。
// 约束：纯函数，无 I/O；永不失败（异常输入降级为 Content 并记录 ParseDegraded）。
type Tokenizer interface {
	Tokenize(raw string) Document
}
