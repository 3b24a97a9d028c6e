package telemetry

import (
	"encoding/json"
	"net/http"
	"strings"
)

// RedactedValue подставляется вместо секретных значений.
const RedactedValue = "[REDACTED]"

// secretKeys — подстроки имён ключей, значения которых не логируются.
// Сравнение без учёта регистра.
var secretKeys = []string{
	"password",
	"token",
	"authorization",
	"secret",
	"apikey",
	"api_key",
	"filep7s",
	"signature",
}

// IsSecretKey сообщает, считается ли ключ секретным.
func IsSecretKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range secretKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Redact возвращает копию JSON-тела с замаскированными секретами.
//
// Тело, которое не является JSON, возвращается усечённым до maxLen
// без изменений: структуру не-JSON ответов (SOAP) мы не разбираем.
func Redact(body []byte, maxLen int) string {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return truncate(string(body), maxLen)
	}

	out, err := json.Marshal(redactValue(v))
	if err != nil {
		return truncate(string(body), maxLen)
	}
	return truncate(string(out), maxLen)
}

// RedactMap маскирует секреты в map (рекурсивно, копия).
func RedactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return redactValue(m).(map[string]any)
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if IsSecretKey(k) {
				out[k] = RedactedValue
				continue
			}
			out[k] = redactValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = redactValue(val)
		}
		return out
	default:
		return v
	}
}

// RedactHeaders возвращает заголовки для лога с замаскированными секретами.
func RedactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		if IsSecretKey(k) {
			out[k] = RedactedValue
			continue
		}
		out[k] = h.Get(k)
	}
	return out
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "...(truncated)"
}
