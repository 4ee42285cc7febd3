package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"subtrans/internal/diag"
	"subtrans/internal/rate"
	"subtrans/pkg/contract"
)

// Dispatcher 按优先级依次尝试后端；单批内顺序回退，不并发。
// 同一节流分组内相邻两次调用之间由 Pacer 保证最小间隔。
type Dispatcher struct {
	specs  []contract.BackendSpec
	pacer  *rate.Pacer
	logger *diag.Logger
}

// New: specs 按 Priority 升序稳定排序；pacer 为 nil 时不做节流。
func New(specs []contract.BackendSpec, pacer *rate.Pacer, logger *diag.Logger) (*Dispatcher, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("dispatch: %w: no backends", contract.ErrInvalidInput)
	}
	ordered := make([]contract.BackendSpec, len(specs))
	copy(ordered, specs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })
	for i, s := range ordered {
		if s.Backend == nil {
			return nil, fmt.Errorf("dispatch: %w: backend %q has no implementation", contract.ErrInvalidInput, s.Name)
		}
		if s.Name == "" {
			ordered[i].Name = s.Backend.Name()
		}
	}
	if pacer == nil {
		pacer = rate.NewPacer(0, nil, nil, nil)
	}
	return &Dispatcher{specs: ordered, pacer: pacer, logger: logger}, nil
}

// Backends 返回排序后的后端名（诊断与汇总输出用）。
func (d *Dispatcher) Backends() []string {
	out := make([]string, len(d.specs))
	for i, s := range d.specs {
		out[i] = s.Name
	}
	return out
}

// MaxBatchChars 返回全局上限与各后端上限中的最小正值；global<=0 且无后端上限时返回 0。
func (d *Dispatcher) MaxBatchChars(global int) int {
	m := global
	for _, s := range d.specs {
		if s.MaxBatchChars > 0 && (m <= 0 || s.MaxBatchChars < m) {
			m = s.MaxBatchChars
		}
	}
	return m
}

// Dispatch 翻译单批：
// - TranslationError 记录回退事件并转交下一个后端；
// - 行数不一致视同 LineCountMismatch，绝不返回错位结果；
// - ctx 取消直接返回，不计为回退；
// - 全部失败返回 AllBackendsExhausted（携带最后一次错误）。
func (d *Dispatcher) Dispatch(ctx context.Context, fileID string, batch contract.Batch, req contract.Request) (contract.TranslationResult, error) {
	lines := batch.Lines()
	bid := strconv.Itoa(batch.Index)
	res := contract.TranslationResult{BatchIndex: batch.Index}
	attempts := make([]string, 0, len(d.specs))
	var last error

	for _, s := range d.specs {
		if err := ctx.Err(); err != nil {
			return contract.TranslationResult{}, err
		}
		key := rate.LimitKey(s.PaceKey)
		if key == "" {
			key = rate.LimitKey(s.Name)
		}
		if waited, err := d.pacer.Wait(ctx, key); err != nil {
			return contract.TranslationResult{}, err
		} else if waited > 0 {
			d.logger.DebugWithKV("dispatch", "pace", "paced", fileID, bid, map[string]string{"backend": s.Name, "wait": waited.String()})
		}

		attempts = append(attempts, s.Name)
		tm := d.logger.StartWithKV("dispatch", "translate batch", fileID, bid, map[string]string{"backend": s.Name, "lines": strconv.Itoa(len(lines))})
		out, err := s.Backend.Translate(ctx, lines, req)
		if ctx.Err() != nil {
			return contract.TranslationResult{}, ctx.Err()
		}
		if err == nil {
			err = contract.CheckLineCount(s.Name, lines, out)
		}
		if err == nil {
			tm.Finish("ok", int64(len(out)))
			diag.IncOp("dispatch", "batch", "success")
			res.Lines = out
			res.Backend = s.Name
			return res, nil
		}

		te := contract.AsTranslationError(s.Name, err)
		last = te
		res.Fallbacks = append(res.Fallbacks, contract.FallbackEvent{Batch: batch.Index, Backend: s.Name, Kind: te.Kind, Err: te})
		diag.IncOp("dispatch", "batch", "error")
		diag.IncFallback(s.Name, te.Kind.String())
		kv := map[string]string{"backend": s.Name, "kind": te.Kind.String()}
		var ue contract.UpstreamError
		if errors.As(err, &ue) {
			kv["http_status"] = strconv.Itoa(ue.UpstreamStatus())
		}
		d.logger.WarnWithKV("dispatch", "fallback", string(diag.Classify(te)), te.Error(), fileID, bid, kv)
	}

	diag.IncError("dispatch", string(diag.CodeExhausted))
	return contract.TranslationResult{}, &contract.AllBackendsExhausted{Batch: batch.Index, Attempts: attempts, Last: last}
}
