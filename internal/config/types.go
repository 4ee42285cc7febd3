package config

// Config: 运行期只读配置（一次解析，运行期不变）。
// 键名统一 snake_case，JSON/YAML/TOML 三种格式共用同一结构；未知字段在解析期失败。
type Config struct {
	Inputs []string `json:"inputs" yaml:"inputs" toml:"inputs"`
	// Format: srt | plain（不做自动探测）。
	Format string `json:"format" yaml:"format" toml:"format"`
	Source string `json:"source" yaml:"source" toml:"source"`
	Target string `json:"target" yaml:"target" toml:"target"`
	// TargetVariant: 显式字形转换方向（OpenCC 模式名），覆盖语言计划推导出的译后转换。
	TargetVariant string `json:"target_variant" yaml:"target_variant" toml:"target_variant"`
	MaxBatchChars int    `json:"max_batch_chars" yaml:"max_batch_chars" toml:"max_batch_chars"`
	// PaceSeconds: 同一后端相邻两次派发的最小间隔（秒，可为小数）；0 表示不等待。
	// 指针用于区分“未设置”与“显式设置为 0”。
	PaceSeconds *float64 `json:"pace_seconds,omitempty" yaml:"pace_seconds,omitempty" toml:"pace_seconds,omitempty"`
	// Backends: 有序 provider 名称；顺序即优先级。
	Backends []string `json:"backends" yaml:"backends" toml:"backends"`

	Logging Logging `json:"logging" yaml:"logging" toml:"logging"`
	Output  Output  `json:"output" yaml:"output" toml:"output"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components" yaml:"components" toml:"components"`

	Provider map[string]Provider `json:"provider" yaml:"provider" toml:"provider"`

	// 各组件 Options 子树，重新编码为 JSON 后交给工厂严格解析。
	Options Options `json:"options" yaml:"options" toml:"options"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level" yaml:"level" toml:"level"`
}

// Output: 输出位置与命名。
type Output struct {
	Dir string `json:"dir" yaml:"dir" toml:"dir"`
	// Suffix: 插入扩展名之前；为空时使用 ".<target>"。
	Suffix string `json:"suffix" yaml:"suffix" toml:"suffix"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader     string `json:"reader" yaml:"reader" toml:"reader"`
	Batcher    string `json:"batcher" yaml:"batcher" toml:"batcher"`
	Reinserter string `json:"reinserter" yaml:"reinserter" toml:"reinserter"`
	Writer     string `json:"writer" yaml:"writer" toml:"writer"`
}

// Options: 各组件的自由格式 Options。
type Options struct {
	Reader     map[string]any `json:"reader,omitempty" yaml:"reader,omitempty" toml:"reader,omitempty"`
	Tokenizer  map[string]any `json:"tokenizer,omitempty" yaml:"tokenizer,omitempty" toml:"tokenizer,omitempty"`
	Batcher    map[string]any `json:"batcher,omitempty" yaml:"batcher,omitempty" toml:"batcher,omitempty"`
	// Reinserter: 如 {"bilingual": true} 输出原文 + 译文
	Reinserter map[string]any `json:"reinserter,omitempty" yaml:"reinserter,omitempty" toml:"reinserter,omitempty"`
	Writer     map[string]any `json:"writer,omitempty" yaml:"writer,omitempty" toml:"writer,omitempty"`
}

// Provider: 命名 provider 定义（client 实现 + options + 限额）。
type Provider struct {
	Client  string         `json:"client" yaml:"client" toml:"client"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty" toml:"options,omitempty"`
	Limits  Limits         `json:"limits" yaml:"limits" toml:"limits"`
}

// Limits: 每个 provider 的节流与负载上限。
type Limits struct {
	// RPM: 每分钟请求上限；与 pace_seconds 取更严格者。0 表示不限。
	RPM int `json:"rpm" yaml:"rpm" toml:"rpm"`
	// MaxBatchChars: 单次负载上限；0 表示沿用全局 max_batch_chars。
	MaxBatchChars int `json:"max_batch_chars" yaml:"max_batch_chars" toml:"max_batch_chars"`
}
