package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"subtrans/pkg/contract"
)

func chatReply(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "x",
		"object":  "chat.completion",
		"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}}},
	})
	return string(b)
}

func newTestBackend(t *testing.T, h http.HandlerFunc) contract.Backend {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	raw, _ := json.Marshal(map[string]any{
		"base_url":      srv.URL + "/v1",
		"api_key":       "k",
		"extra_headers": map[string]string{"X-Test": "1"},
	})
	b, err := New("oa", raw)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return b
}

func TestTranslateOK(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("路径错误: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" || r.Header.Get("X-Test") != "1" {
			t.Errorf("请求头错误: %v", r.Header)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `\"你好\"`) {
			t.Errorf("原文未进入 user 消息: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatReply("```json\n[\"Hello\",\"World\"]\n```"))
	})
	out, err := b.Translate(context.Background(), []string{"你好", "世界"}, contract.Request{Source: "zh-CN", Target: "en"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !reflect.DeepEqual(out, []string{"Hello", "World"}) {
		t.Fatalf("译文错误: %q", out)
	}
}

func TestTranslateErrors(t *testing.T) {
	cases := []struct {
		name string
		h    http.HandlerFunc
		want contract.TranslationKind
	}{
		{"限流", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
		}, contract.RateLimited},
		{"上游 5xx", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			io.WriteString(w, `{"error":{"message":"down"}}`)
		}, contract.Unreachable},
		{"行数不符", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, chatReply(`["only one"]`))
		}, contract.LineCountMismatch},
		{"空回复", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, chatReply(""))
		}, contract.Malformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBackend(t, tc.h)
			_, err := b.Translate(context.Background(), []string{"a", "b"}, contract.Request{Target: "en"})
			var te *contract.TranslationError
			if !errors.As(err, &te) || te.Kind != tc.want {
				t.Fatalf("预期 %s，得到 %v", tc.want, err)
			}
			if te.Backend != "oa" {
				t.Fatalf("后端名未回填: %q", te.Backend)
			}
		})
	}
}

// 上游状态错误携带 provider 名而非 client 名
func TestUpstreamErrorProviderName(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error":{"message":"bad gateway"}}`)
	})
	_, err := b.Translate(context.Background(), []string{"a"}, contract.Request{Target: "en"})
	var he *contract.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("预期 HTTPError，得到 %v", err)
	}
	if he.Backend != "oa" || he.Status != http.StatusBadGateway {
		t.Fatalf("HTTPError 字段错误: %+v", he)
	}
	if !strings.HasPrefix(he.Error(), "oa upstream 502") {
		t.Fatalf("错误信息应以 provider 名开头: %q", he.Error())
	}
}

func TestMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("oa", nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("缺少密钥应报 ErrInvalidInput: %v", err)
	}
}
