package rate

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DeriveKeyFromProviderOptions 从后端客户端标识与其原样 Options JSON 中提取 API Key，
// 并返回按 client+sha256(key) 构造的节流分组键；同一账号下的多个后端因此共享间隔。
// 仅解析常见键名："api_key" 与 "api_key_env"。
// 免密钥的 Web 服务（google）按服务名与代理分组；纯本地后端返回错误，由调用方退回后端名。
func DeriveKeyFromProviderOptions(client string, raw json.RawMessage) (LimitKey, error) {
	// 为避免跨层依赖 plugins/* 的具体类型，这里按通用 JSON 键解析。
	var obj map[string]any
	_ = json.Unmarshal(raw, &obj)

	pick := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}

	key := ""
	switch client {
	case "google":
		svc := strings.ToLower(strings.TrimSpace(pick(obj, "service")))
		if svc == "" {
			svc = "google"
		}
		if proxy := pick(obj, "proxy"); proxy != "" {
			svc += "@" + proxy
		}
		return LimitKey("google:" + svc), nil
	case "mock", "flaky", "variant":
		// 本地后端：仅当显式给出 api_key 时参与分组（调试用）
		key = pick(obj, "api_key")
	default:
		key = pick(obj, "api_key")
		if key == "" {
			env := pick(obj, "api_key_env")
			if env == "" {
				env = defaultKeyEnv[client]
			}
			if env != "" {
				key = os.Getenv(env)
			}
		}
	}

	if key == "" {
		return "", fmt.Errorf("rate: missing api key for client %s", client)
	}
	sum := sha256.Sum256([]byte(key))
	return LimitKey(fmt.Sprintf("%s:%x", client, sum[:])), nil
}

// 与各客户端 Options.defaults 中的 api_key_env 默认值保持一致。
var defaultKeyEnv = map[string]string{
	"openai": "OPENAI_API_KEY",
	"gemini": "GOOGLE_API_KEY",
}
