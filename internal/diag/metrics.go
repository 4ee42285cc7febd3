package diag

import (
	"sort"
	"strings"
	"sync"
)

// 进程内指标（并发安全），运行结束时由 CLI 汇总输出。
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - fallback_total{backend,kind}
// - op_duration_ms{comp,stage}（累计）
var metrics = struct {
	mu        sync.Mutex
	ops       map[string]int64
	errs      map[string]int64
	fallbacks map[string]int64
	durs      map[string]int64
}{
	ops:       map[string]int64{},
	errs:      map[string]int64{},
	fallbacks: map[string]int64{},
	durs:      map[string]int64{},
}

func key(parts ...string) string { return strings.Join(parts, "/") }

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	metrics.mu.Lock()
	metrics.ops[key(comp, stage, result)]++
	metrics.mu.Unlock()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	metrics.mu.Lock()
	metrics.errs[key(comp, code)]++
	metrics.mu.Unlock()
}

// IncFallback 记录一次回退（backend 为失败的后端）。
func IncFallback(backend, kind string) {
	metrics.mu.Lock()
	metrics.fallbacks[key(backend, kind)]++
	metrics.mu.Unlock()
}

// ObserveDuration 累加阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	metrics.mu.Lock()
	metrics.durs[key(comp, stage)] += durMS
	metrics.mu.Unlock()
}

// Sample 为单个计数项。
type Sample struct {
	Name  string
	Key   string
	Value int64
}

// Snapshot 返回全部计数项（按名称与键排序）。
func Snapshot() []Sample {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	var out []Sample
	add := func(name string, m map[string]int64) {
		for k, v := range m {
			out = append(out, Sample{Name: name, Key: k, Value: v})
		}
	}
	add("op_total", metrics.ops)
	add("error_total", metrics.errs)
	add("fallback_total", metrics.fallbacks)
	add("op_duration_ms", metrics.durs)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// ResetMetrics 清空计数（测试与多次运行之间使用）。
func ResetMetrics() {
	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	metrics.ops = map[string]int64{}
	metrics.errs = map[string]int64{}
	metrics.fallbacks = map[string]int64{}
	metrics.durs = map[string]int64{}
}
