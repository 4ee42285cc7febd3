package contract

// Batch: 长度受限的槽位分组。
// - Index 为文档内批序（0..n-1）；
// - Slots 保持原始槽位顺序；所有批按序拼接恰好还原槽位序列；
// - Chars 为负载字符数（rune 计数，含 '\n' 分隔符）。
type Batch struct {
	Index int
	Slots []ContentSlot
	Chars int
}

// Lines 返回批内文本行（发送给后端的有序负载）。
func (b Batch) Lines() []string {
	out := make([]string, len(b.Slots))
	for i, s := range b.Slots {
		out[i] = s.Text
	}
	return out
}

// Batcher: 将槽位切分为满足 maxChars 上限的批。
// 约束：
//  1. 不重排、不丢失、不重复；
//  2. 每批 Chars < maxChars，单个超长槽位独占一批；
//  3. 空输入返回空列表；maxChars <= 0 返回 ErrInvalidInput。
type Batcher interface {
	Make(slots []ContentSlot, maxChars int) ([]Batch, error)
}
