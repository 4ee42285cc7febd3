package contract

import "strings"

// JoinPayload: 以 '\n' 拼接行，形成发往后端的单段负载。
func JoinPayload(lines []string) string { return strings.Join(lines, "\n") }

// SplitPayload: JoinPayload 的逆操作。
// 统一 CRLF→LF；仅去除整体末尾的单个换行（部分上游会追加）。空负载返回空切片。
func SplitPayload(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

// CheckLineCount: 校验行数守恒；不一致时返回 LineCountMismatch。
func CheckLineCount(backend string, in, out []string) error {
	if len(in) != len(out) {
		return MismatchError(backend, len(in), len(out))
	}
	return nil
}
