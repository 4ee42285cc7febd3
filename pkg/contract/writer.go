package contract

import (
	"context"
	"io"
)

// Writer: 将完整译文持久化到目标介质。
// 约束：
//  1. 同一 FileID 单写者（实现应加锁，冲突时返回 ErrLocked）；
//  2. 仅在整篇成功后调用；实现需保证读者看不到半成品（原子替换）；
//  3. ctx 取消/超时需尽快返回；
//  4. 错误直接上抛（不做重试/回退）。
type Writer interface {
	Write(ctx context.Context, id FileID, r io.Reader) error
}
