package plain

import "subtrans/pkg/contract"

// Tokenizer: 纯文本分词。每个非空行即一个内容槽位；空白行保留为 Blank。
type Tokenizer struct{}

// New 创建纯文本 Tokenizer（无配置项）。
func New() *Tokenizer { return &Tokenizer{} }

var _ contract.Tokenizer = (*Tokenizer)(nil)

func (t *Tokenizer) Tokenize(raw string) contract.Document {
	lines, bom := contract.SplitRaw(raw)
	doc := contract.Document{
		Format:   contract.PlainText,
		Skeleton: make([]contract.SkeletonLine, 0, len(lines)),
		Slots:    make([]contract.ContentSlot, 0, len(lines)),
		BOM:      bom,
	}
	for i, rl := range lines {
		if contract.IsBlank(rl.Text) {
			doc.Skeleton = append(doc.Skeleton, contract.SkeletonLine{Position: i, Kind: contract.KindBlank, Literal: rl.Text, CR: rl.CR})
			continue
		}
		doc.Skeleton = append(doc.Skeleton, contract.SkeletonLine{Position: i, Kind: contract.KindContent, CR: rl.CR})
		doc.Slots = append(doc.Slots, contract.ContentSlot{Position: i, Text: rl.Text})
	}
	return doc
}
