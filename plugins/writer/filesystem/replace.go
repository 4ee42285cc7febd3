package filesystem

import "os"

// osReplace: 同目录 rename。POSIX 上为原子操作；Windows 上 os.Rename 使用 MoveFileEx(REPLACE_EXISTING)。
func osReplace(tmpPath, dest string) error {
	return os.Rename(tmpPath, dest)
}

// syncDir 尽力 fsync 父目录以持久化 rename；不支持目录 fsync 的平台上返回的错误由调用方忽略。
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
