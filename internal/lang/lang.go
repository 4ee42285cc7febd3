package lang

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"subtrans/pkg/contract"
)

// Auto 表示由后端自行识别源语言。
const Auto = "auto"

// Plan 描述一次文档处理的语言路径。
// 繁体中文不直接交给翻译后端：源为繁体时先转简体再翻译，目标为繁体时先译成简体再转换。
type Plan struct {
	Source string // 交给后端的源语言（可为 auto）
	Target string // 交给后端的目标语言
	// PreConvert / PostConvert: 翻译前作用于原文、翻译后作用于译文的字形转换方向；空表示不转换。
	PreConvert  string
	PostConvert string
	// ConvertOnly: 同一语言的字形变体之间，仅做转换、不经翻译后端。
	ConvertOnly bool
}

// Derive 根据源/目标语言标签与可选的变体覆盖推导处理路径。
// variant 非空时覆盖目标侧转换方向（例如目标 zh-TW 但希望使用 s2t 而非 s2twp）。
func Derive(source, target, variant string) (Plan, error) {
	if strings.TrimSpace(target) == "" {
		return Plan{}, fmt.Errorf("lang: %w: empty target", contract.ErrInvalidInput)
	}
	tgt, err := language.Parse(target)
	if err != nil {
		return Plan{}, fmt.Errorf("lang: %w: target %q: %v", contract.ErrInvalidInput, target, err)
	}
	p := Plan{Source: Auto, Target: tgt.String()}

	var src language.Tag
	srcKnown := source != "" && !strings.EqualFold(source, Auto)
	if srcKnown {
		if src, err = language.Parse(source); err != nil {
			return Plan{}, fmt.Errorf("lang: %w: source %q: %v", contract.ErrInvalidInput, source, err)
		}
		p.Source = src.String()
	}

	tgtZh, tgtHant := chinese(tgt)
	srcZh, srcHant := false, false
	if srcKnown {
		srcZh, srcHant = chinese(src)
	}

	switch {
	case srcZh && tgtZh:
		p.ConvertOnly = true
		if src == tgt {
			break
		}
		if srcHant {
			p.PreConvert = toSimplified(src)
		}
		if tgtHant {
			p.PostConvert = fromSimplified(tgt)
		}
	default:
		if srcHant {
			p.PreConvert = toSimplified(src)
			p.Source = "zh-CN"
		}
		if tgtHant {
			p.PostConvert = fromSimplified(tgt)
			p.Target = "zh-CN"
		}
	}
	if v := strings.ToLower(strings.TrimSpace(variant)); v != "" {
		p.PostConvert = v
	}
	return p, nil
}

// chinese 返回 (是否中文, 是否繁体书写)。
func chinese(t language.Tag) (zh, hant bool) {
	base, _ := t.Base()
	if base.String() != "zh" {
		return false, false
	}
	script, _ := t.Script()
	return true, script.String() == "Hant"
}

func region(t language.Tag) string {
	// 仅采用显式地区；zh-Hant 推断出的 TW 不算
	r, conf := t.Region()
	if conf != language.Exact {
		return ""
	}
	return r.String()
}

// toSimplified: 繁体 → 简体（按地区选择词典）。
func toSimplified(t language.Tag) string {
	switch region(t) {
	case "TW":
		return "tw2s"
	case "HK", "MO":
		return "hk2s"
	}
	return "t2s"
}

// fromSimplified: 简体 → 繁体（台湾使用含惯用词的 s2twp）。
func fromSimplified(t language.Tag) string {
	switch region(t) {
	case "TW":
		return "s2twp"
	case "HK", "MO":
		return "s2hk"
	}
	return "s2t"
}

// Describe 返回便于日志与终端展示的路径说明。
func (p Plan) Describe() string {
	var b strings.Builder
	if p.PreConvert != "" {
		b.WriteString(p.PreConvert)
		b.WriteString(" → ")
	}
	if p.ConvertOnly {
		b.WriteString("convert")
	} else {
		fmt.Fprintf(&b, "%s → %s", Name(p.Source), Name(p.Target))
	}
	if p.PostConvert != "" {
		b.WriteString(" → ")
		b.WriteString(p.PostConvert)
	}
	return b.String()
}

// Name 返回语言标签的英文名；auto 或无法解析时原样返回。
func Name(tag string) string {
	if strings.EqualFold(tag, Auto) {
		return Auto
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
