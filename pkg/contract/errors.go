package contract

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// 最小错误分类（用于上层策略判定与日志分类）。
var (
	ErrRateLimited     = errors.New("rate limited")
	ErrResponseInvalid = errors.New("response invalid")
	ErrInvalidInput    = errors.New("invalid input")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrLocked: 目标工件正被其他写者持有。
	ErrLocked = errors.New("artifact locked")
)

// TranslationKind: 单后端失败的分类。
type TranslationKind int

const (
	Unreachable TranslationKind = iota
	Timeout
	LineCountMismatch
	Malformed
	RateLimited
)

func (k TranslationKind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case Timeout:
		return "timeout"
	case LineCountMismatch:
		return "line_count_mismatch"
	case Malformed:
		return "malformed"
	case RateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// TranslationError: 单个后端对单批的失败；由 Dispatcher 通过回退恢复。
type TranslationError struct {
	Kind    TranslationKind
	Backend string
	// Want/Got 仅在 LineCountMismatch 时有意义。
	Want, Got int
	Err       error
}

func (e *TranslationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Backend)
	if b.Len() == 0 {
		b.WriteString("backend")
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Kind == LineCountMismatch {
		fmt.Fprintf(&b, " (want %d, got %d)", e.Want, e.Got)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TranslationError) Unwrap() error { return e.Err }

// Is: 使 errors.Is(err, ErrRateLimited / ErrResponseInvalid) 对分类同样成立。
func (e *TranslationError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Kind == RateLimited
	case ErrResponseInvalid:
		return e.Kind == Malformed || e.Kind == LineCountMismatch
	}
	return false
}

// NewTranslationError 以给定分类包装底层错误。
func NewTranslationError(kind TranslationKind, backend string, err error) *TranslationError {
	return &TranslationError{Kind: kind, Backend: backend, Err: err}
}

// MismatchError 构造行数不一致错误。
func MismatchError(backend string, want, got int) *TranslationError {
	return &TranslationError{Kind: LineCountMismatch, Backend: backend, Want: want, Got: got}
}

// TransportError 将传输层错误归类为 Timeout 或 Unreachable。
// 调用方应先自行处理 ctx 取消（取消不属于后端失败）。
func TransportError(backend string, err error) *TranslationError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTranslationError(Timeout, backend, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return NewTranslationError(Timeout, backend, err)
	}
	return NewTranslationError(Unreachable, backend, err)
}

// AsTranslationError 将任意后端错误归一为 *TranslationError（已是则原样返回）。
func AsTranslationError(backend string, err error) *TranslationError {
	if err == nil {
		return nil
	}
	var te *TranslationError
	if errors.As(err, &te) {
		if te.Backend == "" {
			cp := *te
			cp.Backend = backend
			return &cp
		}
		return te
	}
	switch {
	case errors.Is(err, ErrRateLimited):
		return NewTranslationError(RateLimited, backend, err)
	case errors.Is(err, ErrResponseInvalid):
		return NewTranslationError(Malformed, backend, err)
	}
	return TransportError(backend, err)
}

// AllBackendsExhausted: 某批在全部后端均失败；对整篇文档致命。
type AllBackendsExhausted struct {
	Batch    int
	Attempts []string
	Last     error
}

func (e *AllBackendsExhausted) Error() string {
	return fmt.Sprintf("batch %d: all backends exhausted [%s]: %v", e.Batch, strings.Join(e.Attempts, ","), e.Last)
}

func (e *AllBackendsExhausted) Unwrap() error { return e.Last }

// StructuralIntegrityError: 槽位/骨架计数失衡；致命，禁止吞掉。
type StructuralIntegrityError struct {
	Batch  int // -1 表示整篇级别
	Want   int
	Got    int
	Reason string
}

func (e *StructuralIntegrityError) Error() string {
	if e.Batch >= 0 {
		return fmt.Sprintf("structural integrity: batch %d: %s (want %d, got %d)", e.Batch, e.Reason, e.Want, e.Got)
	}
	return fmt.Sprintf("structural integrity: %s (want %d, got %d)", e.Reason, e.Want, e.Got)
}

func (e *StructuralIntegrityError) Unwrap() error { return ErrInvariantViolation }

// ParseDegraded: 分词阶段的非致命降级（输入不规范时的尽力解析）。
type ParseDegraded struct {
	Position int
	Reason   string
}

func (e ParseDegraded) Error() string {
	return fmt.Sprintf("parse degraded at line %d: %s", e.Position+1, e.Reason)
}
