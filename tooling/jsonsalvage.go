package tooling

import (
	"encoding/json"
	"strings"
)

// SalvageArguments repairs tool-call argument text that didn't parse as
// JSON on its own: it extracts the first balanced `{...}` region and
// retries. If no balanced region decodes, it returns the original text
// wrapped with a `_parseError` marker so the model can see what it sent
// and self-correct, per spec section 4.6.
func SalvageArguments(raw string) json.RawMessage {
	trimmed := strings.TrimSpace(raw)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}

	if region, ok := firstBalancedObject(trimmed); ok && json.Valid([]byte(region)) {
		return json.RawMessage(region)
	}

	fallback := map[string]string{
		"_parseError": "could not parse tool arguments as JSON",
		"_raw":        raw,
	}
	data, err := json.Marshal(fallback)
	if err != nil {
		return json.RawMessage(`{"_parseError":"could not parse tool arguments as JSON"}`)
	}
	return data
}

// firstBalancedObject scans s for the first `{` and returns the text up
// to its matching `}`, respecting string literals and escapes so braces
// inside quoted values don't throw off the count.
func firstBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
