package rate

import (
	"context"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

// LimitKey: 节流分组键（例如 provider 名称或按密钥派生的键）。
type LimitKey string

// Interval 返回分组的最小调用间隔：max(pace, 60s/RPM)。rpm<=0 表示不按 RPM 约束。
func Interval(pace time.Duration, rpm int) time.Duration {
	if rpm > 0 {
		if d := time.Minute / time.Duration(rpm); d > pace {
			return d
		}
	}
	if pace < 0 {
		return 0
	}
	return pace
}

// SleepFunc: 可中断睡眠；测试中以假时钟替换。
type SleepFunc func(ctx context.Context, d time.Duration) error

// Pacer: 按分组串行化调用节奏（并发安全）。
// 同一分组内相邻两次放行间隔不小于该组的 Interval；首次调用立即放行。
type Pacer struct {
	clk   func() time.Time
	sleep SleepFunc
	def   time.Duration

	mu        sync.Mutex
	intervals map[LimitKey]time.Duration
	lims      map[LimitKey]*xrate.Limiter
}

// NewPacer: def 为未单独配置分组的默认间隔；clk/sleep 为空时使用真实时钟。
func NewPacer(def time.Duration, per map[LimitKey]time.Duration, clk func() time.Time, sleep SleepFunc) *Pacer {
	if clk == nil {
		clk = time.Now
	}
	if sleep == nil {
		sleep = sleepCtx
	}
	p := &Pacer{
		clk:       clk,
		sleep:     sleep,
		def:       def,
		intervals: make(map[LimitKey]time.Duration, len(per)),
		lims:      make(map[LimitKey]*xrate.Limiter),
	}
	for k, d := range per {
		p.intervals[k] = d
	}
	return p
}

func (p *Pacer) limiter(key LimitKey) *xrate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.lims[key]; ok {
		return l
	}
	d, ok := p.intervals[key]
	if !ok {
		d = p.def
	}
	lim := xrate.Inf
	if d > 0 {
		lim = xrate.Every(d)
	}
	l := xrate.NewLimiter(lim, 1)
	p.lims[key] = l
	return l
}

// Wait 阻塞直到该分组允许下一次调用或 ctx 取消；返回实际等待时长。
// 取消时归还预留，不占用后续调用的节奏。
func (p *Pacer) Wait(ctx context.Context, key LimitKey) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l := p.limiter(key)
	now := p.clk()
	r := l.ReserveN(now, 1)
	d := r.DelayFrom(now)
	if d <= 0 {
		return 0, nil
	}
	if err := p.sleep(ctx, d); err != nil {
		r.CancelAt(p.clk())
		return 0, err
	}
	return d, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
