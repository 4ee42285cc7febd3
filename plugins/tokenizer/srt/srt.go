package srt

import (
	"fmt"
	"strconv"
	"strings"

	"subtrans/pkg/contract"
)

// Options 为 SRT Tokenizer 的可选配置（最小必要）。
type Options struct {
	// StrictIndex: 为 true 时不做乱序序号的重同步，乱序序号行按 Content 处理。
	StrictIndex bool `json:"strict_index"`
}

// Tokenizer 以显式状态机扫描 SRT：expectIndex → expectTimecode → inContent。
type Tokenizer struct {
	strict bool
}

// New 创建 SRT Tokenizer。
func New(opts *Options) *Tokenizer {
	t := &Tokenizer{}
	if opts != nil {
		t.strict = opts.StrictIndex
	}
	return t
}

var _ contract.Tokenizer = (*Tokenizer)(nil)

type state int

const (
	expectIndex state = iota
	expectTimecode
	inContent
)

// Tokenize 将 SRT 文本解析为骨架与内容槽位。
// 不校验时间轴语法：识别到序号后的下一行一律视为时间轴，不参与翻译。
func (t *Tokenizer) Tokenize(raw string) contract.Document {
	lines, bom := contract.SplitRaw(raw)
	doc := contract.Document{
		Format:   contract.Srt,
		Skeleton: make([]contract.SkeletonLine, 0, len(lines)),
		BOM:      bom,
	}
	counter := 1
	st := expectIndex

	emit := func(pos int, k contract.Kind, rl contract.RawLine) {
		sl := contract.SkeletonLine{Position: pos, Kind: k, CR: rl.CR}
		if k == contract.KindContent {
			doc.Slots = append(doc.Slots, contract.ContentSlot{Position: pos, Text: rl.Text})
		} else {
			sl.Literal = rl.Text
		}
		doc.Skeleton = append(doc.Skeleton, sl)
	}
	degrade := func(pos int, reason string) {
		doc.Degradations = append(doc.Degradations, contract.ParseDegraded{Position: pos, Reason: reason})
	}
	// 下一行是否形如时间轴（仅用于序号判定，不做语法校验）
	nextIsTimecode := func(i int) bool {
		return i+1 < len(lines) && strings.Contains(lines[i+1].Text, "-->")
	}

	for i, rl := range lines {
		trimmed := strings.TrimSpace(rl.Text)
		switch st {
		case expectIndex:
			switch {
			case trimmed == "":
				emit(i, contract.KindBlank, rl)
			case trimmed == strconv.Itoa(counter):
				emit(i, contract.KindIndex, rl)
				counter++
				st = expectTimecode
			case !t.strict && isDigits(trimmed) && nextIsTimecode(i):
				n, _ := strconv.Atoi(trimmed)
				degrade(i, fmt.Sprintf("out-of-order index: want %d, got %s", counter, trimmed))
				emit(i, contract.KindIndex, rl)
				counter = n + 1
				st = expectTimecode
			default:
				degrade(i, "content outside block")
				emit(i, contract.KindContent, rl)
				st = inContent
			}
		case expectTimecode:
			if trimmed == "" {
				degrade(i, "missing timecode")
				emit(i, contract.KindBlank, rl)
				st = expectIndex
				continue
			}
			emit(i, contract.KindTimecode, rl)
			st = inContent
		case inContent:
			switch {
			case trimmed == "":
				emit(i, contract.KindBlank, rl)
				st = expectIndex
			case trimmed == strconv.Itoa(counter) && nextIsTimecode(i):
				degrade(i, "missing blank separator")
				emit(i, contract.KindIndex, rl)
				counter++
				st = expectTimecode
			default:
				emit(i, contract.KindContent, rl)
			}
		}
	}
	return doc
}

func isDigits(s string) bool {
	if s == "" || len(s) > 9 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
