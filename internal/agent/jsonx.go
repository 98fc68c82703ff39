package agent

// extractJSON returns the first balanced JSON object or array found in s.
// Model responses are sometimes wrapped in code fences or prose; this is a
// boundary-robustness concern, not business logic. It is a plain scan that
// respects string literals and escapes.
func extractJSON(s string) (string, bool) {
	for i := 0; i < len(s); i++ {
		open := s[i]
		if open != '{' && open != '[' {
			continue
		}
		if end, ok := scanBalanced(s, i); ok {
			return s[i : end+1], true
		}
	}
	return "", false
}

// scanBalanced scans from the opening bracket at start and returns the index
// of its matching close bracket.
func scanBalanced(s string, start int) (int, bool) {
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
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
