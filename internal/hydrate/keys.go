package hydrate

import (
	"strings"
	"unicode"
)

// RenameKeys returns a hook that renames the top-level keys of a payload.
// Nested values are left as they are.
func RenameKeys(rename func(string) string) Hook {
	return func(_ Context, payload map[string]any) (map[string]any, error) {
		out := make(map[string]any, len(payload))
		for key, value := range payload {
			out[rename(key)] = value
		}
		return out, nil
	}
}

// CamelCase converts snake_case to lowerCamelCase.
func CamelCase(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 || b.Len() == 0 {
			b.WriteString(part)
			continue
		}
		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}

// SnakeCase converts lowerCamelCase or UpperCamelCase to snake_case.
func SnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
