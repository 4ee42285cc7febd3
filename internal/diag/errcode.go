package diag

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"subtrans/pkg/contract"
)

// Code 是日志与指标使用的错误分类，与退出码无关。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeNetwork   Code = "network"
	CodeProtocol  Code = "protocol"
	CodeInvariant Code = "invariant"
	CodeBudget    Code = "budget"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
	CodeExhausted Code = "exhausted"
)

// sentinelCodes 按顺序匹配；先命中者生效。
var sentinelCodes = []struct {
	err  error
	code Code
}{
	{context.DeadlineExceeded, CodeCancel},
	{contract.ErrRateLimited, CodeBudget},
	{contract.ErrResponseInvalid, CodeProtocol},
	{contract.ErrInvariantViolation, CodeInvariant},
	{contract.ErrInvalidInput, CodeInvariant},
	{contract.ErrPathInvalid, CodeInvariant},
	{contract.ErrLocked, CodeIO},
}

// Classify 将错误归为最小分类，只看类型与哨兵，不做字符串匹配。
// 回退耗尽优先于其内部最后一次失败的分类。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, context.Canceled) {
		return CodeCancel
	}
	var ex *contract.AllBackendsExhausted
	if errors.As(err, &ex) {
		return CodeExhausted
	}
	var te *contract.TranslationError
	if errors.As(err, &te) {
		return kindCode(te.Kind)
	}
	for _, sc := range sentinelCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}
	var perr *os.PathError
	var nerr net.Error
	switch {
	case errors.As(err, &perr):
		return CodeIO
	case errors.As(err, &nerr):
		return CodeNetwork
	}
	return CodeUnknown
}

func kindCode(k contract.TranslationKind) Code {
	switch k {
	case contract.RateLimited:
		return CodeBudget
	case contract.Malformed, contract.LineCountMismatch:
		return CodeProtocol
	}
	return CodeNetwork
}

// NowUTC 返回 RFC3339 UTC 时间字符串（用于结构化日志字段 ts）。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
