package skeleton

import (
	"strings"

	"subtrans/pkg/contract"
)

// Options 为骨架回填的可选配置。
type Options struct {
	// Bilingual: 内容行先输出原文，再另起一行输出译文。
	// 默认 false，输出与原文结构逐行对应。
	Bilingual bool `json:"bilingual"`
}

type reinserter struct {
	bilingual bool
}

// New 创建骨架回填器；opts 为 nil 时使用默认值。
func New(opts *Options) (contract.Reinserter, error) {
	r := &reinserter{}
	if opts != nil {
		r.bilingual = opts.Bilingual
	}
	return r, nil
}

// Merge 将各批译文按批序展平，并按骨架顺序回填：
// - 非 Content 行输出 Literal 原文；
// - Content 行依次消费下一条译文（双语模式下先写原文行，行尾沿用原行）；
// - 批序不连续、行数不守恒或槽位与骨架位置不对应，均返回 StructuralIntegrityError。
func (r *reinserter) Merge(doc contract.Document, results []contract.TranslationResult) (string, error) {
	total := 0
	for i, res := range results {
		if res.BatchIndex != i {
			return "", &contract.StructuralIntegrityError{Batch: res.BatchIndex, Want: i, Got: res.BatchIndex, Reason: "batch order"}
		}
		total += len(res.Lines)
	}
	if total != len(doc.Slots) {
		return "", &contract.StructuralIntegrityError{Batch: -1, Want: len(doc.Slots), Got: total, Reason: "translated line count"}
	}
	flat := make([]string, 0, total)
	for _, res := range results {
		flat = append(flat, res.Lines...)
	}

	var b strings.Builder
	n := estimateSize(doc, flat)
	if r.bilingual {
		n *= 2
	}
	b.Grow(n)
	if doc.BOM {
		b.WriteString("\uFEFF")
	}
	next := 0
	for i, sl := range doc.Skeleton {
		if i > 0 {
			b.WriteByte('\n')
		}
		if sl.Kind == contract.KindContent {
			if next >= len(doc.Slots) || doc.Slots[next].Position != sl.Position {
				return "", &contract.StructuralIntegrityError{Batch: -1, Want: sl.Position, Got: slotPos(doc, next), Reason: "slot/skeleton position"}
			}
			if r.bilingual {
				b.WriteString(doc.Slots[next].Text)
				if sl.CR {
					b.WriteByte('\r')
				}
				b.WriteByte('\n')
			}
			b.WriteString(flat[next])
			next++
		} else {
			b.WriteString(sl.Literal)
		}
		if sl.CR {
			b.WriteByte('\r')
		}
	}
	if next != len(doc.Slots) {
		return "", &contract.StructuralIntegrityError{Batch: -1, Want: len(doc.Slots), Got: next, Reason: "unconsumed slots"}
	}
	return b.String(), nil
}

func slotPos(doc contract.Document, i int) int {
	if i < len(doc.Slots) {
		return doc.Slots[i].Position
	}
	return -1
}

func estimateSize(doc contract.Document, flat []string) int {
	n := len(doc.Skeleton) * 2
	for _, sl := range doc.Skeleton {
		n += len(sl.Literal)
	}
	for _, s := range flat {
		n += len(s)
	}
	return n
}
