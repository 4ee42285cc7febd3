package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix: 环境变量统一前缀。
const EnvPrefix = "SUBTRANS_"

// Defaults 返回带有安全默认值的 Config 雏形。
// 默认后端链为两个免密钥 Web 服务：google 在前，google_backup 兜底（超时更长、单批上限 1500 字符）。
// 全局批上限与派发间隔沿用经验值 4500 字符 / 3 秒；实际批上限取链上最小值。
func Defaults() Config {
	pace := 3.0
	return Config{
		Format:        "srt",
		Source:        "auto",
		Target:        "en",
		MaxBatchChars: 4500,
		PaceSeconds:   &pace,
		Backends:      []string{"google", "google_backup"},
		Logging:       Logging{Level: "info"},
		Output:        Output{Dir: "out"},
		Components: Components{
			Reader:     "fs",
			Batcher:    "greedy",
			Reinserter: "skeleton",
			Writer:     "fs",
		},
		Provider: map[string]Provider{
			"google": {Client: "google", Limits: Limits{MaxBatchChars: 4500}},
			"google_backup": {
				Client:  "google",
				Options: map[string]any{"timeout_seconds": 60},
				Limits:  Limits{MaxBatchChars: 1500},
			},
			"mock": {Client: "mock", Options: map[string]any{"api_key": "mock"}},
		},
	}
}

// LoadFile 按扩展名选择解析器：.json / .yaml / .yml / .toml；均严格拒绝未知字段。
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return decodeJSON(f)
	case ".yaml", ".yml":
		return decodeYAML(f)
	case ".toml":
		return decodeTOML(f)
	default:
		return Config{}, fmt.Errorf("config: unsupported file type %q (want .json/.yaml/.toml)", filepath.Ext(path))
	}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
func LoadJSON(path string, raw []byte) (Config, error) {
	switch {
	case len(raw) > 0:
		return decodeJSON(bytes.NewReader(raw))
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return Config{}, err
		}
		defer f.Close()
		return decodeJSON(f)
	default:
		return Config{}, errors.New("no config source provided")
	}
}

func decodeJSON(r io.Reader) (Config, error) {
	var cfg Config
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config json: %w", err)
	}
	return cfg, nil
}

func decodeYAML(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config yaml: %w", err)
	}
	return cfg, nil
}

func decodeTOML(r io.Reader) (Config, error) {
	var cfg Config
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config toml: %w", err)
	}
	return cfg, nil
}

// Merge 按优先级合并（后者覆盖前者）。
// 标量/字符串/列表为“替换”；provider 按名称逐字段合并；options 子树整体替换。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if s := strings.TrimSpace(over.Format); s != "" {
		out.Format = s
	}
	if s := strings.TrimSpace(over.Source); s != "" {
		out.Source = s
	}
	if s := strings.TrimSpace(over.Target); s != "" {
		out.Target = s
	}
	if s := strings.TrimSpace(over.TargetVariant); s != "" {
		out.TargetVariant = s
	}
	if over.MaxBatchChars != 0 {
		out.MaxBatchChars = over.MaxBatchChars
	}
	// 0 具有语义（不等待），以指针区分是否设置
	if over.PaceSeconds != nil {
		v := *over.PaceSeconds
		out.PaceSeconds = &v
	}
	if len(over.Backends) > 0 {
		out.Backends = cloneStrings(over.Backends)
	}
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}
	if over.Output.Dir != "" {
		out.Output.Dir = over.Output.Dir
	}
	if over.Output.Suffix != "" {
		out.Output.Suffix = over.Output.Suffix
	}

	// 组件名（空不覆盖）
	if over.Components.Reader != "" {
		out.Components.Reader = over.Components.Reader
	}
	if over.Components.Batcher != "" {
		out.Components.Batcher = over.Components.Batcher
	}
	if over.Components.Reinserter != "" {
		out.Components.Reinserter = over.Components.Reinserter
	}
	if over.Components.Writer != "" {
		out.Components.Writer = over.Components.Writer
	}

	if len(over.Provider) > 0 {
		merged := make(map[string]Provider, len(out.Provider)+len(over.Provider))
		for k, v := range out.Provider {
			merged[k] = v
		}
		for k, v := range over.Provider {
			merged[k] = mergeProvider(merged[k], v)
		}
		out.Provider = merged
	}

	if over.Options.Reader != nil {
		out.Options.Reader = over.Options.Reader
	}
	if over.Options.Tokenizer != nil {
		out.Options.Tokenizer = over.Options.Tokenizer
	}
	if over.Options.Batcher != nil {
		out.Options.Batcher = over.Options.Batcher
	}
	if over.Options.Reinserter != nil {
		out.Options.Reinserter = over.Options.Reinserter
	}
	if over.Options.Writer != nil {
		out.Options.Writer = over.Options.Writer
	}
	return out
}

func mergeProvider(base, over Provider) Provider {
	out := base
	if over.Client != "" {
		out.Client = over.Client
	}
	if over.Options != nil {
		out.Options = over.Options
	}
	if over.Limits.RPM != 0 {
		out.Limits.RPM = over.Limits.RPM
	}
	if over.Limits.MaxBatchChars != 0 {
		out.Limits.MaxBatchChars = over.Limits.MaxBatchChars
	}
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 SUBTRANS_；集合之外的键忽略；数值或 JSON 非法时报错。
// 支持：INPUTS, FORMAT, SOURCE, TARGET, TARGET_VARIANT, MAX_BATCH_CHARS, PACE_SECONDS,
// BACKENDS, LOG_LEVEL, OUTPUT_DIR, OUTPUT_SUFFIX, COMPONENTS_*,
// 以及 PROVIDER__<name>__CLIENT / PROVIDER__<name>__LIMITS_{RPM,MAX_BATCH_CHARS} / PROVIDER__<name>__OPTIONS_JSON
func EnvOverlay(environ []string) (Config, error) {
	var over Config
	prov := map[string]Provider{}
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		key, val := kv[len(EnvPrefix):eq], kv[eq+1:]
		tv := strings.TrimSpace(val)
		switch key {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "FORMAT":
			over.Format = tv
		case "SOURCE":
			over.Source = tv
		case "TARGET":
			over.Target = tv
		case "TARGET_VARIANT":
			over.TargetVariant = tv
		case "MAX_BATCH_CHARS":
			v, err := atoi(val)
			if err != nil {
				return Config{}, fmt.Errorf("env %s: %w", kv[:eq], err)
			}
			over.MaxBatchChars = v
		case "PACE_SECONDS":
			v, err := strconv.ParseFloat(tv, 64)
			if err != nil {
				return Config{}, fmt.Errorf("env %s: %w", kv[:eq], err)
			}
			over.PaceSeconds = &v
		case "BACKENDS":
			over.Backends = splitComma(val)
		case "LOG_LEVEL":
			over.Logging.Level = tv
		case "OUTPUT_DIR":
			over.Output.Dir = tv
		case "OUTPUT_SUFFIX":
			over.Output.Suffix = tv
		case "COMPONENTS_READER":
			over.Components.Reader = tv
		case "COMPONENTS_BATCHER":
			over.Components.Batcher = tv
		case "COMPONENTS_REINSERTER":
			over.Components.Reinserter = tv
		case "COMPONENTS_WRITER":
			over.Components.Writer = tv
		default:
			if !strings.HasPrefix(key, "PROVIDER__") {
				continue
			}
			parts := strings.Split(key, "__")
			if len(parts) < 3 || strings.TrimSpace(parts[1]) == "" {
				continue
			}
			name := strings.TrimSpace(parts[1])
			field := strings.Join(parts[2:], "__")
			p := prov[name]
			changed := false
			switch field {
			case "CLIENT":
				if tv != "" {
					p.Client = tv
					changed = true
				}
			case "LIMITS_RPM":
				v, err := atoi(val)
				if err != nil {
					return Config{}, fmt.Errorf("env %s: %w", kv[:eq], err)
				}
				p.Limits.RPM, changed = v, true
			case "LIMITS_MAX_BATCH_CHARS":
				v, err := atoi(val)
				if err != nil {
					return Config{}, fmt.Errorf("env %s: %w", kv[:eq], err)
				}
				p.Limits.MaxBatchChars, changed = v, true
			case "OPTIONS_JSON":
				// 空值视为未设置，避免清空配置文件中的选项
				if tv != "" {
					var m map[string]any
					if err := json.Unmarshal([]byte(tv), &m); err != nil {
						return Config{}, fmt.Errorf("env %s: %w", kv[:eq], err)
					}
					p.Options, changed = m, true
				}
			}
			if changed {
				prov[name] = p
			}
		}
	}
	if len(prov) > 0 {
		over.Provider = prov
	}
	return over, nil
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
