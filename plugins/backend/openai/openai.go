package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"subtrans/pkg/contract"
	"subtrans/plugins/decoder/linejson"
	"subtrans/plugins/prompt/translate"
)

// Options: 最小必需配置。
type Options struct {
	BaseURL        string   `json:"base_url"`        // 例如 https://api.openai.com/v1
	Model          string   `json:"model"`           // 为空则使用默认
	APIKeyEnv      string   `json:"api_key_env"`     // 优先从环境变量读取
	APIKey         string   `json:"api_key"`         // 明文传入（不推荐，按需用于测试）
	TimeoutSeconds int      `json:"timeout_seconds"` // 可选 client 级超时（秒）
	Temperature    *float32 `json:"temperature,omitempty"`
	// ExtraHeaders: 追加/覆盖请求头（用于 OpenAI 兼容服务，如 OpenRouter 等）。
	ExtraHeaders map[string]string `json:"extra_headers"`
	// Prompt / Decoder: 提示模板与回复解析选项。
	Prompt  *translate.Options `json:"prompt,omitempty"`
	Decoder *linejson.Options  `json:"decoder,omitempty"`
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = "gpt-4.1-mini"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
}

type Backend struct {
	name   string
	client *goopenai.Client
	model  string
	temp   *float32
	pb     *translate.Builder
	dec    *linejson.Decoder
}

// New 从原样 JSON 选项构造后端。
func New(name string, raw json.RawMessage) (contract.Backend, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("openai options: %w", err)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" && opts.APIKeyEnv != "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("openai: %w: missing api key", contract.ErrInvalidInput)
	}
	pb, err := translate.New(opts.Prompt)
	if err != nil {
		return nil, err
	}
	cfg := goopenai.DefaultConfig(key)
	cfg.BaseURL = opts.BaseURL
	var rt http.RoundTripper = http.DefaultTransport
	if len(opts.ExtraHeaders) > 0 {
		rt = headerTransport{base: rt, headers: opts.ExtraHeaders}
	}
	cfg.HTTPClient = &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second, Transport: rt}
	if name == "" {
		name = "openai"
	}
	return &Backend{
		name:   name,
		client: goopenai.NewClientWithConfig(cfg),
		model:  opts.Model,
		temp:   opts.Temperature,
		pb:     pb,
		dec:    linejson.New(opts.Decoder),
	}, nil
}

// headerTransport 为每个请求追加固定请求头。
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	for k, v := range t.headers {
		if k == "" {
			continue
		}
		r.Header.Set(k, v)
	}
	return t.base.RoundTrip(r)
}

func (b *Backend) Name() string { return b.name }

// Translate: 单次 Chat 调用，同步返回。
func (b *Backend) Translate(ctx context.Context, lines []string, req contract.Request) ([]string, error) {
	if len(lines) == 0 {
		return []string{}, nil
	}
	msgs, err := b.pb.Build(ctx, lines, req)
	if err != nil {
		return nil, err
	}
	creq := goopenai.ChatCompletionRequest{Model: b.model}
	if b.temp != nil {
		creq.Temperature = *b.temp
	}
	for _, m := range msgs {
		creq.Messages = append(creq.Messages, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	resp, err := b.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, contract.AsTranslationError(b.name, classify(b.name, err))
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, contract.NewTranslationError(contract.Malformed, b.name, contract.ErrResponseInvalid)
	}
	out, err := b.dec.Decode(resp.Choices[0].Message.Content, len(lines))
	if err != nil {
		return nil, contract.AsTranslationError(b.name, err)
	}
	return out, nil
}

// classify 将 SDK 错误映射为最小错误分类：429 限流；408/5xx 上游网络类；其余 4xx 输入/配置无效。
// name 为 provider 名，写入 HTTPError 以便日志区分同一 client 的多个 provider。
func classify(name string, err error) error {
	status, msg := 0, ""
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status, msg = apiErr.HTTPStatusCode, apiErr.Message
	case errors.As(err, &reqErr):
		status, msg = reqErr.HTTPStatusCode, reqErr.Error()
	default:
		return err
	}
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", msg, contract.ErrRateLimited)
	case status == http.StatusRequestTimeout || status/100 == 5:
		return &contract.HTTPError{Backend: name, Status: status, Msg: msg}
	case status/100 == 4:
		return fmt.Errorf("%s upstream %d: %w", name, status, contract.ErrInvalidInput)
	}
	return err
}

var _ contract.Backend = (*Backend)(nil)
