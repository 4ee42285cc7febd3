package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"subtrans/pkg/contract"
	"subtrans/plugins/decoder/linejson"
	"subtrans/plugins/prompt/translate"
)

// Options: Google Generative Language API (Gemini) 最小必需。
type Options struct {
	BaseURL   string `json:"base_url"`    // https://generativelanguage.googleapis.com
	Model     string `json:"model"`       // 默认 gemini-2.5-flash
	APIKeyEnv string `json:"api_key_env"` // 默认 GOOGLE_API_KEY
	APIKey    string `json:"api_key"`
	// 客户端超时（秒）。未设置或 <=0 时采用默认 60 秒。
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
	// 可覆盖默认 /v1beta/models/{model}:generateContent；支持 {model} 占位
	EndpointPath  string            `json:"endpoint_path"`
	APIKeyInQuery *bool             `json:"api_key_in_query"` // 默认 true；为 false 时使用 x-goog-api-key 头
	ExtraHeaders  map[string]string `json:"extra_headers"`
	ExtraQuery    map[string]string `json:"extra_query"`
	// ResponseMIMEType: 默认 application/json；设为 "text/plain" 可关闭 JSON 模式。
	ResponseMIMEType string `json:"response_mime_type,omitempty"`

	Prompt  *translate.Options `json:"prompt,omitempty"`
	Decoder *linejson.Options  `json:"decoder,omitempty"`
}

func (o *Options) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if o.Model == "" {
		o.Model = "gemini-2.5-flash"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "GOOGLE_API_KEY"
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/v1beta/models/{model}:generateContent"
	}
	if o.APIKeyInQuery == nil {
		t := true
		o.APIKeyInQuery = &t
	}
	if o.TimeoutSeconds <= 0 {
		o.TimeoutSeconds = 60
	}
	if o.ResponseMIMEType == "" {
		o.ResponseMIMEType = "application/json"
	}
}

type Backend struct {
	name     string
	url      string
	apiKey   string
	inQuery  bool
	extraH   map[string]string
	extraQ   map[string]string
	respMIME string
	pb       *translate.Builder
	dec      *linejson.Decoder
	do       func(*http.Request) (*http.Response, error)
}

func New(name string, raw json.RawMessage) (contract.Backend, error) {
	var opts Options
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("gemini options: %w", err)
		}
	}
	opts.defaults()
	key := opts.APIKey
	if key == "" && opts.APIKeyEnv != "" {
		key = os.Getenv(opts.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("gemini: %w: missing api key", contract.ErrInvalidInput)
	}
	pb, err := translate.New(opts.Prompt)
	if err != nil {
		return nil, err
	}
	path := strings.ReplaceAll(opts.EndpointPath, "{model}", url.PathEscape(opts.Model))
	if !(strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")) {
		path = strings.TrimRight(opts.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	}
	hc := &http.Client{Timeout: time.Duration(opts.TimeoutSeconds) * time.Second}
	if name == "" {
		name = "gemini"
	}
	return &Backend{
		name:     name,
		url:      path,
		apiKey:   key,
		inQuery:  *opts.APIKeyInQuery,
		extraH:   opts.ExtraHeaders,
		extraQ:   opts.ExtraQuery,
		respMIME: opts.ResponseMIMEType,
		pb:       pb,
		dec:      linejson.New(opts.Decoder),
		do:       hc.Do,
	}, nil
}

func (b *Backend) Name() string { return b.name }

// 请求/响应（最小字段）。
type gmPart struct {
	Text string `json:"text"`
}
type gmContent struct {
	Role  string   `json:"role,omitempty"`
	Parts []gmPart `json:"parts"`
}
type gmGenerationConfig struct {
	ResponseMIMEType string `json:"response_mime_type,omitempty"`
}
type gmReq struct {
	SystemInstruction *gmContent          `json:"systemInstruction,omitempty"`
	Contents          []gmContent         `json:"contents"`
	GenerationConfig  *gmGenerationConfig `json:"generationConfig,omitempty"`
}
type gmResp struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// encode: system 消息进入 systemInstruction，其余按 user/model 映射。
func (b *Backend) encode(msgs []translate.Message) ([]byte, error) {
	var req gmReq
	for _, m := range msgs {
		if m.Role == translate.RoleSystem {
			req.SystemInstruction = &gmContent{Parts: []gmPart{{Text: m.Content}}}
			continue
		}
		req.Contents = append(req.Contents, gmContent{Role: normalizeGeminiRole(m.Role), Parts: []gmPart{{Text: m.Content}}})
	}
	if b.respMIME != "" && b.respMIME != "text/plain" {
		req.GenerationConfig = &gmGenerationConfig{ResponseMIMEType: b.respMIME}
	}
	return json.Marshal(&req)
}

// normalizeGeminiRole 将通用 Chat 角色映射为 Gemini 支持的集合：user|model。
func normalizeGeminiRole(r string) string {
	switch strings.ToLower(strings.TrimSpace(r)) {
	case "model", "assistant":
		return "model"
	default:
		return "user"
	}
}

func (b *Backend) Translate(ctx context.Context, lines []string, req contract.Request) ([]string, error) {
	if len(lines) == 0 {
		return []string{}, nil
	}
	msgs, err := b.pb.Build(ctx, lines, req)
	if err != nil {
		return nil, err
	}
	text, err := b.call(ctx, msgs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, contract.AsTranslationError(b.name, err)
	}
	out, err := b.dec.Decode(text, len(lines))
	if err != nil {
		return nil, contract.AsTranslationError(b.name, err)
	}
	return out, nil
}

func (b *Backend) call(ctx context.Context, msgs []translate.Message) (string, error) {
	body, err := b.encode(msgs)
	if err != nil {
		return "", fmt.Errorf("encode: %v: %w", err, contract.ErrInvalidInput)
	}
	// 构造 URL 并安全追加 query 参数
	u, err := url.Parse(b.url)
	if err != nil {
		return "", fmt.Errorf("invalid url: %v: %w", err, contract.ErrInvalidInput)
	}
	q := u.Query()
	if b.inQuery {
		q.Set("key", b.apiKey)
	}
	for k, v := range b.extraQ {
		if k != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %v: %w", err, contract.ErrInvalidInput)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if !b.inQuery {
		req.Header.Set("x-goog-api-key", b.apiKey)
	}
	for k, v := range b.extraH {
		if k != "" {
			req.Header.Set(k, v)
		}
	}
	resp, err := b.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", contract.ErrRateLimited
	}
	if resp.StatusCode/100 != 2 {
		ue := contract.ReadHTTPError("gemini", resp)
		if ue.Timeout() || ue.Temporary() {
			return "", ue
		}
		return "", fmt.Errorf("%v: %w", ue, contract.ErrInvalidInput)
	}
	var gr gmResp
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("decode: %w", contract.ErrResponseInvalid)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 || gr.Candidates[0].Content.Parts[0].Text == "" {
		return "", contract.ErrResponseInvalid
	}
	return gr.Candidates[0].Content.Parts[0].Text, nil
}

var _ contract.Backend = (*Backend)(nil)
