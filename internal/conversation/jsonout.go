package conversation

import (
	"errors"
	"strings"
)

// ExtractJSONObject pulls a JSON object out of raw model output. Models
// wrap JSON in markdown fences or surrounding prose even when asked not
// to, so this strips fences first and then falls back to scanning for the
// first balanced top-level object.
func ExtractJSONObject(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("conversation: empty model output")
	}

	raw = stripCodeFence(raw)

	if strings.HasPrefix(raw, "{") && strings.HasSuffix(raw, "}") {
		return raw, nil
	}

	start := strings.Index(raw, "{")
	if start < 0 {
		return "", errors.New("conversation: no JSON object in model output")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
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
				return raw[start : i+1], nil
			}
		}
	}

	return "", errors.New("conversation: unbalanced JSON object in model output")
}

func stripCodeFence(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	if idx := strings.LastIndex(raw, "```"); idx >= 0 {
		raw = raw[:idx]
	}
	return strings.TrimSpace(raw)
}
