package google

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/smilingpoplar/translate/config"
	"github.com/smilingpoplar/translate/translator"

	"subtrans/pkg/contract"
)

// Options: 免密钥 Web 翻译服务。
type Options struct {
	// Service: 翻译服务名，默认 google。
	Service string `json:"service,omitempty"`
	// Proxy: http:// 或 socks5:// 代理地址；为空直连。
	Proxy string `json:"proxy,omitempty"`
	// 单次调用超时（秒）。未设置或 <=0 时采用默认 30 秒。
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

func (o *Options) defaults() {
	o.Service = strings.ToLower(strings.TrimSpace(o.Service))
	if o.Service == "" {
		o.Service = "google"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 30
	}
}

// textTranslator: 逐条翻译一组文本，返回等长结果。
type textTranslator interface {
	Translate(texts []string, toLang string) ([]string, error)
}

// newTranslator 构造底层服务客户端；测试中替换为本地桩。
var newTranslator = func(service, proxy string) (textTranslator, error) {
	return translator.GetTranslator(service, proxy)
}

type Backend struct {
	name    string
	timeout time.Duration
	tr      textTranslator
}

// New 从原样 JSON 选项构造。
func New(name string, raw json.RawMessage) (contract.Backend, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("google options: %w", err)
		}
	}
	opts.defaults()
	if names := config.GetAllServiceNames(); !slices.Contains(names, opts.Service) {
		return nil, fmt.Errorf("google: %w: unknown service %q (want one of %s)",
			contract.ErrInvalidInput, opts.Service, strings.Join(names, ","))
	}
	tr, err := newTranslator(opts.Service, opts.Proxy)
	if err != nil {
		return nil, fmt.Errorf("google: %w: %v", contract.ErrInvalidInput, err)
	}
	if name == "" {
		name = "google"
	}
	return &Backend{name: name, timeout: time.Duration(opts.TimeoutSeconds) * time.Second, tr: tr}, nil
}

func (b *Backend) Name() string { return b.name }

type outcome struct {
	lines []string
	err   error
}

// Translate: 整批逐行提交，源语言由服务自动识别。
// 底层调用不接收 ctx，超时与取消在此处截断等待；迟到的结果被丢弃。
func (b *Backend) Translate(ctx context.Context, lines []string, req contract.Request) ([]string, error) {
	if len(lines) == 0 {
		return []string{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		out, err := b.tr.Translate(slices.Clone(lines), req.Target)
		done <- outcome{out, err}
	}()

	select {
	case <-cctx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, contract.TransportError(b.name, cctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, contract.AsTranslationError(b.name, r.err)
		}
		if err := contract.CheckLineCount(b.name, lines, r.lines); err != nil {
			return nil, err
		}
		return r.lines, nil
	}
}

var _ contract.Backend = (*Backend)(nil)
