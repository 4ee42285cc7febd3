package translate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"subtrans/pkg/contract"
)

// Options 为逐行字幕翻译 PromptBuilder 的最小配置。
// - InlineSystemTemplate / SystemTemplatePath: system 提示模板（二选一，均为空时使用内置默认模板）。
type Options struct {
	InlineSystemTemplate string `json:"inline_system_template"`
	SystemTemplatePath   string `json:"system_template_path"`
	// 术语对照表（可选）：与 system 模板一样的二选一优先级；若提供则拼接进 system 提示尾部。
	InlineGlossary string `json:"inline_glossary"`
	GlossaryPath   string `json:"glossary_path"`
}

// Role 取值与 Chat 接口保持一致。
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message 为一条 Chat 消息。
type Message struct {
	Role    string
	Content string
}

// Builder: 以有序行构造 system+user 两条消息。
// 运行期不做 I/O；模板在构造期解析。
type Builder struct {
	sysT *template.Template
	glos string
}

// New 创建 PromptBuilder。
func New(opts *Options) (*Builder, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}

	src := defaultSystemTemplate
	if o.InlineSystemTemplate != "" {
		src = o.InlineSystemTemplate
	} else if o.SystemTemplatePath != "" {
		b, err := os.ReadFile(o.SystemTemplatePath)
		if err != nil {
			return nil, fmt.Errorf("system template read: %w", err)
		}
		src = string(b)
	}
	tpl, err := template.New("system").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("system template parse: %w", err)
	}
	var glos string
	if o.InlineGlossary != "" {
		glos = o.InlineGlossary
	} else if o.GlossaryPath != "" {
		b, err := os.ReadFile(o.GlossaryPath)
		if err != nil {
			return nil, fmt.Errorf("glossary read: %w", err)
		}
		glos = string(b)
	}
	return &Builder{sysT: tpl, glos: strings.TrimSpace(glos)}, nil
}

// templateData 为 system 模板可引用的字段。
type templateData struct {
	Source     string
	Target     string
	SourceName string
	TargetName string
	Count      int
}

// Build: 构造 [system, user]。user 消息为 JSON 字符串数组，保持与输入逐行对应。
func (b *Builder) Build(ctx context.Context, lines []string, req contract.Request) ([]Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("prompt: %w: empty lines", contract.ErrInvalidInput)
	}
	data := templateData{
		Source:     req.Source,
		Target:     req.Target,
		SourceName: LanguageName(req.Source),
		TargetName: LanguageName(req.Target),
		Count:      len(lines),
	}
	var sys bytes.Buffer
	if err := b.sysT.Execute(&sys, data); err != nil {
		return nil, fmt.Errorf("system template exec: %w", err)
	}
	if b.glos != "" {
		sys.WriteString("\n<glossary>\n")
		sys.WriteString(b.glos)
		sys.WriteString("\n</glossary>\n")
	}

	var user bytes.Buffer
	user.WriteString("Translate the following ")
	user.WriteString(strconv.Itoa(len(lines)))
	user.WriteString(" lines. Reply with a JSON array of exactly ")
	user.WriteString(strconv.Itoa(len(lines)))
	user.WriteString(" strings.\n")
	writeLines(&user, lines)

	return []Message{
		{Role: RoleSystem, Content: sys.String()},
		{Role: RoleUser, Content: user.String()},
	}, nil
}

// writeLines 以 JSON 字符串数组写出原文（逐元素 Quote，避免整体 Marshal 的 HTML 转义）。
func writeLines(w *bytes.Buffer, lines []string) {
	w.WriteByte('[')
	for i, l := range lines {
		if i > 0 {
			w.WriteString(",\n ")
		}
		w.WriteString(strconv.Quote(l))
	}
	w.WriteString("]\n")
}

// LanguageName 返回语言标签的英文名；"auto"/空/无法解析时返回可读占位。
func LanguageName(tag string) string {
	if tag == "" || strings.EqualFold(tag, "auto") {
		return "the detected source language"
	}
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if n := display.English.Tags().Name(t); n != "" {
		return n
	}
	return tag
}

// 默认 system 模板。
const defaultSystemTemplate = `## Role Definition
You are a professional subtitle translator. Translate each line from {{.SourceName}} into {{.TargetName}} ({{.Target}}).
Keep character names consistent and use the surrounding lines as context.

## I/O Protocol (Very Important)
- The user message contains a JSON array of {{.Count}} source lines.
- Reply with ONLY a JSON array of {{.Count}} strings; element i is the translation of line i.
- Never merge, split, drop or reorder lines. Do not include markdown or code fences.
- If a <glossary> is present, its term mappings MUST take precedence.

<example>
user: ["- Hi, everyone!", "Please be seated."]
assistant: ["- 大家好！", "请坐。"]
</example>
`
