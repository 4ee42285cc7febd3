package contract

import "strings"

const utf8BOM = "\uFEFF"

// RawLine: 按 '\n' 切分后的一行；CR 表示原行以 '\r' 结尾（已剥离）。
type RawLine struct {
	Text string
	CR   bool
}

// SplitRaw 将原始文本切分为物理行，剥离首部 BOM 与行尾 '\r'。
// 以 '\n' 重新拼接各行（CR 行补回 '\r'、BOM 补回首部）即可逐字节还原原文；
// 末尾换行会产生一个空的最后一行。
func SplitRaw(raw string) (lines []RawLine, bom bool) {
	if strings.HasPrefix(raw, utf8BOM) {
		bom = true
		raw = raw[len(utf8BOM):]
	}
	parts := strings.Split(raw, "\n")
	lines = make([]RawLine, len(parts))
	for i, p := range parts {
		if strings.HasSuffix(p, "\r") {
			lines[i] = RawLine{Text: p[:len(p)-1], CR: true}
			continue
		}
		lines[i] = RawLine{Text: p}
	}
	return lines, bom
}

// IsBlank: 仅含空白的行视为空行。
func IsBlank(s string) bool { return strings.TrimSpace(s) == "" }
