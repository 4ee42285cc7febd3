package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// 默认输入为 STDIN（"-"），输出到 ./out；后端链为 google + google_backup 两个免密钥服务，
// 另附 openai / gemini / variant / mock 的完整选项键，按需加入 backends 即可启用。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := d
	cfg.Inputs = []string{"-"}
	cfg.Provider = map[string]Provider{
		"google": {
			Client: "google",
			Options: map[string]any{
				"service":         "google",
				"proxy":           "",
				"timeout_seconds": 30,
			},
			Limits: Limits{MaxBatchChars: 4500},
		},
		"google_backup": {
			Client: "google",
			Options: map[string]any{
				"service":         "google",
				"proxy":           "",
				"timeout_seconds": 60,
			},
			Limits: Limits{MaxBatchChars: 1500},
		},
		"openai": {
			Client: "openai",
			Options: map[string]any{
				"base_url":        "",
				"model":           "",
				"api_key_env":     "OPENAI_API_KEY",
				"api_key":         "",
				"timeout_seconds": 60,
			},
			Limits: Limits{RPM: 60},
		},
		"gemini": {
			Client: "gemini",
			Options: map[string]any{
				"base_url":           "",
				"model":              "",
				"api_key_env":        "GOOGLE_API_KEY",
				"api_key":            "",
				"endpoint_path":      "",
				"timeout_seconds":    60,
				"api_key_in_query":   true,
				"response_mime_type": "",
			},
			Limits: Limits{RPM: 15},
		},
		"variant": {
			Client:  "variant",
			Options: map[string]any{"mode": "s2twp"},
		},
		"mock": {
			Client:  "mock",
			Options: map[string]any{"prefix": "", "api_key": "mock"},
		},
	}
	cfg.Options.Reader = map[string]any{
		"buf_size":          65536,
		"exclude_dir_names": []any{".git", "node_modules", "vendor"},
	}
	cfg.Options.Tokenizer = map[string]any{"strict_index": false}
	cfg.Options.Batcher = map[string]any{"unit": "rune"}
	cfg.Options.Reinserter = map[string]any{"bilingual": false}
	cfg.Options.Writer = map[string]any{
		"atomic":   true,
		"flat":     true,
		"lock":     true,
		"buf_size": 65536,
	}
	return cfg
}

// Render 以指定格式（json | yaml | toml）序列化配置。
func Render(cfg Config, as string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(as)) {
	case "", "json":
		b, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	case "yaml", "yml":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "toml":
		return toml.Marshal(cfg)
	default:
		return nil, fmt.Errorf("config: unknown template format %q (want json|yaml|toml)", as)
	}
}

// EnvTemplate 生成 .env 模板：列出支持的环境变量键与当前值。
func EnvTemplate(cfg Config) string {
	var b strings.Builder
	w := func(k, v string) { fmt.Fprintf(&b, "%s%s=%s\n", EnvPrefix, k, v) }
	b.WriteString("# subtrans 环境变量（优先级高于配置文件，低于命令行参数）\n")
	w("INPUTS", strings.Join(cfg.Inputs, ","))
	w("FORMAT", cfg.Format)
	w("SOURCE", cfg.Source)
	w("TARGET", cfg.Target)
	w("TARGET_VARIANT", cfg.TargetVariant)
	w("MAX_BATCH_CHARS", fmt.Sprint(cfg.MaxBatchChars))
	if cfg.PaceSeconds != nil {
		w("PACE_SECONDS", fmt.Sprint(*cfg.PaceSeconds))
	}
	w("BACKENDS", strings.Join(cfg.Backends, ","))
	w("LOG_LEVEL", cfg.Logging.Level)
	w("OUTPUT_DIR", cfg.Output.Dir)
	w("OUTPUT_SUFFIX", cfg.Output.Suffix)

	names := make([]string, 0, len(cfg.Provider))
	for n := range cfg.Provider {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		p := cfg.Provider[n]
		b.WriteString("\n")
		w("PROVIDER__"+n+"__CLIENT", p.Client)
		w("PROVIDER__"+n+"__LIMITS_RPM", fmt.Sprint(p.Limits.RPM))
		w("PROVIDER__"+n+"__LIMITS_MAX_BATCH_CHARS", fmt.Sprint(p.Limits.MaxBatchChars))
	}
	b.WriteString("\n# 后端密钥（按 api_key_env 读取）\nOPENAI_API_KEY=\nGOOGLE_API_KEY=\n")
	return b.String()
}
