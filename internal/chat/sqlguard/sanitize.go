package sqlguard

import "strings"

const maskedValue = "***"

// maxLoggedRunes caps logged string values so free-text filters do not bloat logs.
const maxLoggedRunes = 64

var sensitiveFragments = []string{"id", "token", "secret"}

// Sanitize returns a copy of params safe for diagnostics: any parameter whose
// key names an identifier, token, or secret is masked, and long string values
// are truncated. The result is never used for the executed statement.
func Sanitize(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for key, value := range params {
		if isSensitiveKey(key) {
			out[key] = maskedValue
			continue
		}
		if s, ok := value.(string); ok {
			out[key] = truncate(s)
			continue
		}
		out[key] = value
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxLoggedRunes {
		return s
	}
	return string(runes[:maxLoggedRunes-3]) + "..."
}
