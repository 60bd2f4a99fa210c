package llm

import (
	"strings"
)

// ExtractJSONObject returns the first balanced {...} object in text, ignoring
// code fences and surrounding prose.
func ExtractJSONObject(text string) (string, bool) {
	text = StripCodeFence(text)
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// StripCodeFence removes a surrounding ``` fence with an optional language tag.
func StripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	open := strings.Index(t, "```")
	if open < 0 {
		return t
	}
	rest := t[open+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		tag := strings.TrimSpace(rest[:nl])
		if tag == "" || !strings.ContainsAny(tag, " ;(") {
			rest = rest[nl+1:]
		}
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}
