package skeleton

import (
	"errors"
	"testing"

	"subtrans/pkg/contract"
	"subtrans/plugins/tokenizer/plain"
	"subtrans/plugins/tokenizer/srt"
)

// identity: 以原文作为译文，按给定批大小切分结果
func identity(doc contract.Document, per int) []contract.TranslationResult {
	texts := doc.Texts()
	var out []contract.TranslationResult
	for i := 0; i < len(texts); i += per {
		j := i + per
		if j > len(texts) {
			j = len(texts)
		}
		out = append(out, contract.TranslationResult{BatchIndex: len(out), Lines: texts[i:j]})
	}
	return out
}

// 往返律：恒等译文还原原文（含 CRLF / BOM / 末尾换行 / 异常 SRT）
func TestMergeRoundTrip(t *testing.T) {
	docs := []string{
		"",
		"\n\n",
		"1\n00:00:01,000 --> 00:00:02,000\n你好\n\n",
		"\uFEFF1\r\n00:00:01,000 --> 00:00:02,000\r\nhi\r\nthere\r\n\r\n2\r\n00:00:03,000 --> 00:00:04,000\r\nbye\r\n",
		"1\n\n3\n00:00:01,000 --> 00:00:02,000\nx\n2\n00:00:02,000 --> 00:00:03,000\ny",
		"stray\n  \n1\n00:00:01,000 --> 00:00:02,000\n  indented  \n",
	}
	r, _ := New(nil)
	for _, in := range docs {
		for _, tok := range []contract.Tokenizer{srt.New(nil), plain.New()} {
			doc := tok.Tokenize(in)
			got, err := r.Merge(doc, identity(doc, 2))
			if err != nil {
				t.Fatalf("merge %q: %v", in, err)
			}
			if got != in {
				t.Fatalf("往返不一致:\n got %q\nwant %q", got, in)
			}
		}
	}
}

// 仅内容行被替换，序号/时间轴逐字节一致
func TestMergeSubstitutesContentOnly(t *testing.T) {
	doc := srt.New(nil).Tokenize("1\n00:00:01,000 --> 00:00:02,000\n你好\n世界\n\n")
	r, _ := New(nil)
	got, err := r.Merge(doc, []contract.TranslationResult{{BatchIndex: 0, Lines: []string{"hello", "world"}}})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	want := "1\n00:00:01,000 --> 00:00:02,000\nhello\nworld\n\n"
	if got != want {
		t.Fatalf("输出错误: %q", got)
	}
}

// 双语：内容行先原文后译文，行尾沿用原行；非内容行不重复
func TestMergeBilingual(t *testing.T) {
	doc := srt.New(nil).Tokenize("1\r\n00:00:01,000 --> 00:00:02,000\r\n你好\r\n\r\n")
	r, _ := New(&Options{Bilingual: true})
	got, err := r.Merge(doc, []contract.TranslationResult{{BatchIndex: 0, Lines: []string{"hello"}}})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	want := "1\r\n00:00:01,000 --> 00:00:02,000\r\n你好\r\nhello\r\n\r\n"
	if got != want {
		t.Fatalf("双语输出错误:\n got %q\nwant %q", got, want)
	}

	// 关闭时与 nil 选项一致
	off, _ := New(&Options{})
	if got, _ := off.Merge(doc, []contract.TranslationResult{{BatchIndex: 0, Lines: []string{"hello"}}}); got != "1\r\n00:00:01,000 --> 00:00:02,000\r\nhello\r\n\r\n" {
		t.Fatalf("单语输出错误: %q", got)
	}
}

func TestMergeCountMismatch(t *testing.T) {
	doc := plain.New().Tokenize("a\nb\nc")
	r, _ := New(nil)
	_, err := r.Merge(doc, []contract.TranslationResult{{BatchIndex: 0, Lines: []string{"A", "B"}}})
	var se *contract.StructuralIntegrityError
	if !errors.As(err, &se) || se.Want != 3 || se.Got != 2 {
		t.Fatalf("预期 StructuralIntegrityError(3,2)，得到 %v", err)
	}
}

func TestMergeBatchOrder(t *testing.T) {
	doc := plain.New().Tokenize("a\nb")
	r, _ := New(nil)
	_, err := r.Merge(doc, []contract.TranslationResult{
		{BatchIndex: 1, Lines: []string{"B"}},
		{BatchIndex: 0, Lines: []string{"A"}},
	})
	if !errors.Is(err, contract.ErrInvariantViolation) {
		t.Fatalf("乱序批应违例: %v", err)
	}
}

// 槽位与骨架位置不对应（分词结果被篡改）
func TestMergePositionMismatch(t *testing.T) {
	doc := plain.New().Tokenize("a\nb")
	doc.Slots[1].Position = 7
	r, _ := New(nil)
	_, err := r.Merge(doc, identity(doc, 5))
	var se *contract.StructuralIntegrityError
	if !errors.As(err, &se) {
		t.Fatalf("位置错配应违例: %v", err)
	}
}
