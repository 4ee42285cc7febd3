package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"subtrans/pkg/contract"
	"subtrans/plugins/assembler/skeleton"
	"subtrans/plugins/backend/flaky"
	"subtrans/plugins/backend/gemini"
	"subtrans/plugins/backend/google"
	"subtrans/plugins/backend/mock"
	"subtrans/plugins/backend/openai"
	"subtrans/plugins/backend/variant"
	"subtrans/plugins/batcher/greedy"
	rfs "subtrans/plugins/reader/filesystem"
	"subtrans/plugins/tokenizer/plain"
	"subtrans/plugins/tokenizer/srt"
	wfs "subtrans/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewTokenizer 工厂签名：接收原样 JSON Options。
type NewTokenizer func(raw json.RawMessage) (contract.Tokenizer, error)

// NewBatcher 工厂签名：接收原样 JSON Options。
type NewBatcher func(raw json.RawMessage) (contract.Batcher, error)

// NewReinserter 工厂签名：接收原样 JSON Options。
type NewReinserter func(raw json.RawMessage) (contract.Reinserter, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// NewBackend 工厂签名：provider 名称 + 原样 JSON Options。
type NewBackend func(name string, raw json.RawMessage) (contract.Backend, error)

// NewConverter 工厂签名：字形转换器无配置项。
type NewConverter func() contract.Converter

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Tokenizer 工厂注册表；键即文档格式名。
var Tokenizer = map[string]NewTokenizer{
	string(contract.Srt): func(raw json.RawMessage) (contract.Tokenizer, error) {
		var opts srt.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return srt.New(&opts), nil
	},
	string(contract.PlainText): func(raw json.RawMessage) (contract.Tokenizer, error) {
		var opts struct{}
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return plain.New(), nil
	},
}

// Batcher 工厂注册表。
var Batcher = map[string]NewBatcher{
	// greedy: 自左向右贪心累积
	"greedy": func(raw json.RawMessage) (contract.Batcher, error) {
		var opts greedy.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return greedy.New(&opts)
	},
}

// Reinserter 工厂注册表。
var Reinserter = map[string]NewReinserter{
	// skeleton: 按骨架顺序回填，校验行数守恒；bilingual 输出原文 + 译文
	"skeleton": func(raw json.RawMessage) (contract.Reinserter, error) {
		var opts skeleton.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return skeleton.New(&opts)
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（原子替换 + 文件锁）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// Backend 工厂注册表：client 名 → 构造器。Options 先按各自类型严格校验，再交给实现。
var Backend = map[string]NewBackend{
	"google":  strict[google.Options](google.New),
	"openai":  strict[openai.Options](openai.New),
	"gemini":  strict[gemini.Options](gemini.New),
	"mock":    strict[mock.Options](mock.New),
	"flaky":   strict[flaky.Options](flaky.New),
	"variant": strict[variant.Options](variant.New),
}

// Converter 工厂注册表。
var Converter = map[string]NewConverter{
	"opencc": func() contract.Converter { return variant.NewConverter() },
}

func strict[T any](f NewBackend) NewBackend {
	return func(name string, raw json.RawMessage) (contract.Backend, error) {
		var o T
		if err := strictUnmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("%s options: %w", name, err)
		}
		return f(name, raw)
	}
}

// BackendClients 返回已注册的后端 client 名（排序）。
func BackendClients() []string {
	out := make([]string, 0, len(Backend))
	for k := range Backend {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
