package intent

import "strings"

// ExtractJSONObject returns the first complete top-level JSON object embedded
// in free-form model output, tolerating prose before and after it. The second
// return is false when no balanced object exists.
//
// Brittle model-output parsing is confined to this function; everything else
// in the package works with validated structures.
func ExtractJSONObject(s string) (string, bool) {
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
