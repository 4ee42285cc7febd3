package lang

import (
	"errors"
	"strings"
	"testing"

	"subtrans/pkg/contract"
)

func TestDerive(t *testing.T) {
	cases := []struct {
		name         string
		src, tgt, vr string
		want         Plan
	}{
		{"普通翻译", "en", "ja", "", Plan{Source: "en", Target: "ja"}},
		{"自动识别", "auto", "en", "", Plan{Source: "auto", Target: "en"}},
		{"繁体源先转简体", "zh-TW", "en", "", Plan{Source: "zh-CN", Target: "en", PreConvert: "tw2s"}},
		{"繁体目标译后转换", "en", "zh-TW", "", Plan{Source: "en", Target: "zh-CN", PostConvert: "s2twp"}},
		{"香港繁体", "en", "zh-HK", "", Plan{Source: "en", Target: "zh-CN", PostConvert: "s2hk"}},
		{"通用繁体", "en", "zh-Hant", "", Plan{Source: "en", Target: "zh-CN", PostConvert: "s2t"}},
		{"简转繁仅转换", "zh-CN", "zh-TW", "", Plan{Source: "zh-CN", Target: "zh-TW", PostConvert: "s2twp", ConvertOnly: true}},
		{"繁转简仅转换", "zh-HK", "zh-CN", "", Plan{Source: "zh-HK", Target: "zh-CN", PreConvert: "hk2s", ConvertOnly: true}},
		{"同一标签", "zh-CN", "zh-CN", "", Plan{Source: "zh-CN", Target: "zh-CN", ConvertOnly: true}},
		{"变体覆盖", "en", "zh-TW", "s2t", Plan{Source: "en", Target: "zh-CN", PostConvert: "s2t"}},
		{"简体目标直译", "en", "zh-CN", "", Plan{Source: "en", Target: "zh-CN"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Derive(tc.src, tc.tgt, tc.vr)
			if err != nil {
				t.Fatalf("derive: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v\nwant %+v", got, tc.want)
			}
		})
	}
}

func TestDeriveInvalid(t *testing.T) {
	if _, err := Derive("en", "", ""); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("空目标应报 ErrInvalidInput")
	}
	if _, err := Derive("en", "not a tag!", ""); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("非法目标应报 ErrInvalidInput")
	}
	if _, err := Derive("??", "en", ""); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("非法源应报 ErrInvalidInput")
	}
}

func TestDescribe(t *testing.T) {
	p, _ := Derive("zh-TW", "en", "")
	if got := p.Describe(); !strings.HasPrefix(got, "tw2s → ") || !strings.HasSuffix(got, " → English") {
		t.Fatalf("描述错误: %q", got)
	}
	p, _ = Derive("en", "ja", "")
	if got := p.Describe(); got != "English → Japanese" {
		t.Fatalf("描述错误: %q", got)
	}
	p, _ = Derive("zh-CN", "zh-TW", "")
	if got := p.Describe(); got != "convert → s2twp" {
		t.Fatalf("描述错误: %q", got)
	}
	if Name("auto") != "auto" || Name("ja") != "Japanese" {
		t.Fatalf("语言名错误")
	}
}
