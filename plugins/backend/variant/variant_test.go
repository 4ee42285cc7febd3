package variant

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"subtrans/pkg/contract"
)

func TestConvert(t *testing.T) {
	c := NewConverter()
	cases := []struct {
		in, mode, want string
	}{
		{"汉字", "s2t", "漢字"},
		{"漢字", "t2s", "汉字"},
		{"", "s2t", ""},
	}
	for _, tc := range cases {
		got, err := c.Convert(tc.in, tc.mode)
		if err != nil {
			t.Fatalf("%s %q: %v", tc.mode, tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%s %q -> %q, 预期 %q", tc.mode, tc.in, got, tc.want)
		}
	}
}

// TestConvertKeepsLines 行结构与 CR 原样保留
func TestConvertKeepsLines(t *testing.T) {
	c := NewConverter()
	got, err := c.Convert("1\r\n汉字\r\n\r\n", "s2t")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got != "1\r\n漢字\r\n\r\n" {
		t.Fatalf("行结构被破坏: %q", got)
	}
}

func TestUnsupportedMode(t *testing.T) {
	if _, err := NewConverter().Convert("x", "s2jp"); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("不支持的方向应报 ErrInvalidInput: %v", err)
	}
	if _, err := New("v", json.RawMessage(`{"mode":"nope"}`)); err == nil {
		t.Fatalf("构造期应拒绝未知方向")
	}
}

func TestBackend(t *testing.T) {
	b, err := New("v", json.RawMessage(`{"mode":"s2t"}`))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, err := b.Translate(context.Background(), []string{"汉字", "简体"}, contract.Request{})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(out) != 2 || out[0] != "漢字" || out[1] != "簡體" {
		t.Fatalf("转换结果错误: %q", out)
	}
	if b.Name() != "v" {
		t.Fatalf("名称错误: %s", b.Name())
	}
}
