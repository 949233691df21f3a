// Package redaction masks credentials before they reach a log sink. Provider
// errors can echo request headers or config fragments, so every log field
// passes through Fields.
package redaction

import (
	"regexp"
	"strings"
)

const Replacement = "[REDACTED]"

type pattern struct {
	re *regexp.Regexp
	// group is the submatch to mask; 0 masks the whole match.
	group int
}

var patterns = []pattern{
	{re: regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret|secret[_-]?key)\s*[=:]\s*['"]?([a-zA-Z0-9_\-]{16,})['"]?`), group: 2},
	{re: regexp.MustCompile(`(?i)(auth[_-]?token|access[_-]?token|refresh[_-]?token)\s*[=:]\s*['"]?([a-zA-Z0-9_\-\.]{16,})['"]?`), group: 2},
	{re: regexp.MustCompile(`(?i)bearer\s+([a-zA-Z0-9_\-\.]{16,})`), group: 1},
	{re: regexp.MustCompile(`"(?:api_key|apikey|secret|token|private_key)"\s*:\s*"([^"]+)"`), group: 1},
	{re: regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{16,}`)},
	{re: regexp.MustCompile(`sk-[a-zA-Z0-9\-_]{16,}`)},
	{re: regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`)},
}

var sensitiveKeys = []string{
	"api_key", "apikey", "api_secret",
	"secret", "private_key",
	"token", "password", "credential",
	"authorization",
}

// Redact masks every credential found in s.
func Redact(s string) string {
	if s == "" {
		return s
	}
	for _, p := range patterns {
		s = p.re.ReplaceAllStringFunc(s, func(match string) string {
			if p.group == 0 {
				return Replacement
			}
			sub := p.re.FindStringSubmatch(match)
			if len(sub) <= p.group || sub[p.group] == "" {
				return Replacement
			}
			return strings.Replace(match, sub[p.group], Replacement, 1)
		})
	}
	return s
}

// SensitiveKey reports whether a field name itself marks a secret.
func SensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, sk := range sensitiveKeys {
		if strings.Contains(key, sk) {
			return true
		}
	}
	return false
}

// Fields returns a copy of fields with secret-named keys masked and string
// values scrubbed. Nested maps are handled recursively. A nil map is
// returned as is.
func Fields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if SensitiveKey(k) {
			out[k] = Replacement
			continue
		}
		switch val := v.(type) {
		case string:
			out[k] = Redact(val)
		case error:
			out[k] = Redact(val.Error())
		case map[string]any:
			out[k] = Fields(val)
		default:
			out[k] = v
		}
	}
	return out
}
