package contract

import "context"

// Request: 一次翻译调用的语言对。
// Source 可为 "auto"（由后端自行识别）；Target 为 BCP 47 标签。
type Request struct {
	Source string
	Target string
}

// Backend: 单个翻译提供方的统一形状：有序行进，有序行出。
// 约束：
// - 行数守恒（len(out) == len(lines)），否则返回 TranslationError(LineCountMismatch)；
// - 同步调用，尊重 ctx 取消/超时；
// - 不重试（重试与回退由 Dispatcher 负责）。
type Backend interface {
	Name() string
	Translate(ctx context.Context, lines []string, req Request) ([]string, error)
}

// Converter: 字形变体转换（如简繁转换），本地同步执行。
type Converter interface {
	Convert(text, variant string) (string, error)
}

// BackendSpec: 有序后端配置项。
type BackendSpec struct {
	Name string
	// Priority: 升序尝试；相同优先级保持配置顺序。
	Priority int
	// MaxBatchChars: 该后端单次负载上限；0 表示沿用全局上限。
	MaxBatchChars int
	// PaceKey: 节流分组键（同 key 的后端共享调度间隔）；为空时使用 Name。
	PaceKey string
	Backend Backend
}

// FallbackEvent: 某批在某后端失败并转交下一个后端的记录。
type FallbackEvent struct {
	Batch   int
	Backend string
	Kind    TranslationKind
	Err     error
}

// TranslationResult: 单批翻译结果。
// 不变量：len(Lines) == len(对应 Batch.Slots)。
type TranslationResult struct {
	BatchIndex int
	Lines      []string
	Backend    string
	Fallbacks  []FallbackEvent
}

// Reinserter: 将译文按槽位顺序回填至骨架并输出最终文本。
type Reinserter interface {
	Merge(doc Document, results []TranslationResult) (string, error)
}
