package contract

import (
	"path"
	"strings"
)

// NormalizeFileID 规范化路径为跨平台稳定的 FileID。
// 规则：反斜杠统一为正斜杠；path.Clean 清理；保留相对/绝对语义。
func NormalizeFileID(p string) FileID {
	return FileID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}

// WithSuffix 在扩展名前插入后缀：a/b.srt + ".en" => a/b.en.srt。
// 无扩展名时追加到末尾；空后缀原样返回。
func WithSuffix(id FileID, suffix string) FileID {
	if suffix == "" {
		return id
	}
	s := string(id)
	ext := path.Ext(s)
	return FileID(strings.TrimSuffix(s, ext) + suffix + ext)
}
