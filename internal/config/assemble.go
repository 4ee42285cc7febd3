package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"subtrans/internal/diag"
	"subtrans/internal/dispatch"
	"subtrans/internal/lang"
	"subtrans/internal/pipeline"
	"subtrans/internal/rate"
	"subtrans/pkg/contract"
	"subtrans/pkg/registry"
	"subtrans/plugins/backend/variant"
)

// localClients: 本地执行的后端，默认不参与派发节流。
var localClients = map[string]bool{"mock": true, "flaky": true, "variant": true}

// defaultExts: 目录扫描时各格式默认接受的扩展名。
var defaultExts = map[contract.Format][]string{
	contract.Srt:       {".srt"},
	contract.PlainText: {".txt"},
}

// Validate 对翻译运行做静态校验。
func Validate(cfg Config) error {
	if err := validateCommon(cfg); err != nil {
		return err
	}
	if _, err := contract.ParseFormat(cfg.Format); err != nil {
		return fmt.Errorf("config: format: %w", err)
	}
	if _, err := lang.Derive(cfg.Source, cfg.Target, cfg.TargetVariant); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if v := cfg.TargetVariant; v != "" && !variant.Supported(strings.ToLower(v)) {
		return fmt.Errorf("config: target_variant %q not supported (want one of %s)", v, strings.Join(variant.Modes, ","))
	}
	if cfg.MaxBatchChars <= 0 {
		return errors.New("config: max_batch_chars must be > 0")
	}
	if p := cfg.PaceSeconds; p != nil && (!(*p >= 0) || math.IsInf(*p, 1)) {
		return errors.New("config: pace_seconds must be a finite number >= 0")
	}
	if len(cfg.Backends) == 0 {
		return errors.New("config: backends empty")
	}
	seen := map[string]bool{}
	for _, name := range cfg.Backends {
		if seen[name] {
			return fmt.Errorf("config: backend %q listed twice", name)
		}
		seen[name] = true
		prov, ok := cfg.Provider[name]
		if !ok {
			return fmt.Errorf("config: provider %q not found", name)
		}
		if prov.Client == "" {
			return fmt.Errorf("config: provider %q missing client", name)
		}
		if registry.Backend[prov.Client] == nil {
			return fmt.Errorf("config: provider %q: client %q not registered", name, prov.Client)
		}
		if prov.Limits.RPM < 0 || prov.Limits.MaxBatchChars < 0 {
			return fmt.Errorf("config: provider %q: limits must be >= 0", name)
		}
	}
	d := Defaults().Components
	if name := effName(cfg.Components.Batcher, d.Batcher); registry.Batcher[name] == nil {
		return fmt.Errorf("config: batcher %q not registered", name)
	}
	if name := effName(cfg.Components.Reinserter, d.Reinserter); registry.Reinserter[name] == nil {
		return fmt.Errorf("config: reinserter %q not registered", name)
	}
	return nil
}

// ValidateConvert 对纯字形转换运行做静态校验（无需后端）。
func ValidateConvert(cfg Config) error {
	if err := validateCommon(cfg); err != nil {
		return err
	}
	if cfg.TargetVariant == "" {
		return errors.New("config: target_variant required for convert")
	}
	if !variant.Supported(strings.ToLower(cfg.TargetVariant)) {
		return fmt.Errorf("config: target_variant %q not supported (want one of %s)", cfg.TargetVariant, strings.Join(variant.Modes, ","))
	}
	return nil
}

func validateCommon(cfg Config) error {
	if len(cfg.Inputs) == 0 {
		return errors.New("config: inputs empty")
	}
	// 输入路径不得为空字符串；"-" 不能与其他根混用
	dash := false
	for _, r := range cfg.Inputs {
		switch strings.TrimSpace(r) {
		case "":
			return errors.New("config: input path cannot be empty")
		case "-":
			dash = true
		}
	}
	if dash && len(cfg.Inputs) > 1 {
		return errors.New("config: '-' cannot be mixed with other roots")
	}
	if strings.TrimSpace(cfg.Output.Dir) == "" {
		return errors.New("config: output.dir empty")
	}
	d := Defaults().Components
	if name := effName(cfg.Components.Reader, d.Reader); registry.Reader[name] == nil {
		return fmt.Errorf("config: reader %q not registered", name)
	}
	if name := effName(cfg.Components.Writer, d.Writer); registry.Writer[name] == nil {
		return fmt.Errorf("config: writer %q not registered", name)
	}
	return nil
}

// Assemble 构造翻译运行所需的 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只负责重新编码与默认值注入。
func Assemble(cfg Config, logger *diag.Logger) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	format, _ := contract.ParseFormat(cfg.Format)
	d := Defaults().Components

	comp, err := assembleIO(cfg, format)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	tok, err := registry.Tokenizer[string(format)](encode(cfg.Options.Tokenizer))
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("tokenizer: %w", err)
	}
	comp.Tokenizers = map[contract.Format]contract.Tokenizer{format: tok}
	if comp.Batcher, err = registry.Batcher[effName(cfg.Components.Batcher, d.Batcher)](encode(cfg.Options.Batcher)); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("batcher: %w", err)
	}
	if comp.Reinserter, err = registry.Reinserter[effName(cfg.Components.Reinserter, d.Reinserter)](encode(cfg.Options.Reinserter)); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, fmt.Errorf("reinserter: %w", err)
	}

	specs, pacer, err := assembleBackends(cfg)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	if comp.Dispatcher, err = dispatch.New(specs, pacer, logger); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	set := pipeline.Settings{
		Inputs:        cloneStrings(cfg.Inputs),
		Format:        format,
		Source:        cfg.Source,
		Target:        cfg.Target,
		Variant:       strings.ToLower(cfg.TargetVariant),
		MaxBatchChars: cfg.MaxBatchChars,
		OutputSuffix:  cfg.Output.Suffix,
	}
	return comp, set, nil
}

// AssembleConvert 构造纯字形转换运行（Reader + Converter + Writer）。
func AssembleConvert(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := ValidateConvert(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	// 转换不区分格式；目录扫描的扩展名沿用 format（未知时不过滤）
	format, _ := contract.ParseFormat(cfg.Format)
	comp, err := assembleIO(cfg, format)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	set := pipeline.Settings{
		Inputs:       cloneStrings(cfg.Inputs),
		Format:       format,
		Variant:      strings.ToLower(cfg.TargetVariant),
		OutputSuffix: cfg.Output.Suffix,
	}
	return comp, set, nil
}

func assembleIO(cfg Config, format contract.Format) (pipeline.Components, error) {
	d := Defaults().Components
	ropts := withDefault(cfg.Options.Reader, "exts", defaultExts[format])
	if format != "" {
		ropts = withDefault(ropts, "stdin_name", "stdin."+extName(format))
	}
	r, err := registry.Reader[effName(cfg.Components.Reader, d.Reader)](encode(ropts))
	if err != nil {
		return pipeline.Components{}, fmt.Errorf("reader: %w", err)
	}
	wopts := withDefault(cfg.Options.Writer, "output_dir", cfg.Output.Dir)
	w, err := registry.Writer[effName(cfg.Components.Writer, d.Writer)](encode(wopts))
	if err != nil {
		return pipeline.Components{}, fmt.Errorf("writer: %w", err)
	}
	return pipeline.Components{
		Reader:    r,
		Writer:    w,
		Converter: registry.Converter["opencc"](),
	}, nil
}

// assembleBackends 按 backends 顺序构造后端；顺序即优先级。
// 节流分组键由 API Key 派生（同一账号共享间隔），无法派生时退回 provider 名。
// 同一分组被多个 provider 共享时取最严格的间隔。
func assembleBackends(cfg Config) ([]contract.BackendSpec, *rate.Pacer, error) {
	pace := paceDuration(cfg.PaceSeconds)
	specs := make([]contract.BackendSpec, 0, len(cfg.Backends))
	per := map[rate.LimitKey]time.Duration{}
	for i, name := range cfg.Backends {
		prov := cfg.Provider[name]
		raw := encode(prov.Options)
		b, err := registry.Backend[prov.Client](name, raw)
		if err != nil {
			return nil, nil, fmt.Errorf("backend %s: %w", name, err)
		}
		key, derr := rate.DeriveKeyFromProviderOptions(prov.Client, raw)
		if derr != nil {
			key = rate.LimitKey("provider:" + name)
		}
		p := pace
		if localClients[prov.Client] {
			p = 0
		}
		if iv := rate.Interval(p, prov.Limits.RPM); iv > per[key] {
			per[key] = iv
		} else if _, ok := per[key]; !ok {
			per[key] = iv
		}
		specs = append(specs, contract.BackendSpec{
			Name:          name,
			Priority:      i,
			MaxBatchChars: prov.Limits.MaxBatchChars,
			PaceKey:       string(key),
			Backend:       b,
		})
	}
	return specs, rate.NewPacer(pace, per, nil, nil), nil
}

// paceDuration 将秒数（可为小数）换算为间隔；未设置视为 0。
func paceDuration(sec *float64) time.Duration {
	if sec == nil {
		return 0
	}
	return time.Duration(*sec * float64(time.Second))
}

// encode 将自由格式选项重新编码为 JSON；空选项返回 nil（工厂按零值处理）。
func encode(m map[string]any) json.RawMessage {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(normalize(m))
	if err != nil {
		// 选项来自 JSON/YAML/TOML 解析结果，均可编码；保守起见按空处理
		return nil
	}
	return b
}

// normalize: yaml.v3 对嵌套映射可能产生 map[any]any，统一转换为 map[string]any。
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = normalize(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[fmt.Sprint(k)] = normalize(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = normalize(vv)
		}
		return out
	default:
		return v
	}
}

// withDefault 在键缺失时注入默认值；返回副本，不修改入参。
func withDefault(m map[string]any, key string, val any) map[string]any {
	if _, ok := m[key]; ok {
		return m
	}
	if s, ok := val.([]string); ok && len(s) == 0 {
		return m
	}
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = val
	return out
}

func extName(f contract.Format) string {
	if f == contract.PlainText {
		return "txt"
	}
	return string(f)
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}
