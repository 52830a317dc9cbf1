package repair

import (
	"encoding/json"
	"regexp"
	"strings"
)

var partialKeyRe = regexp.MustCompile(`"([^"]+)"\s*:`)

// ExtractPartial greedily recovers well-formed "key": value fragments from
// text that fails to parse as a whole. Each candidate value is parsed in
// isolation, with one pass of [RepairSyntax] applied to container values
// that do not parse directly; keys whose value cannot be independently
// parsed are dropped. The result may be empty but is never nil.
//
// Partial data beats total failure: callers feed the recovered subset
// through normalization and validation exactly like a full parse.
func ExtractPartial(text string) map[string]any {
	results := map[string]any{}

	// The whole text may be one decodable object with trailing garbage.
	var full map[string]any
	if err := json.Unmarshal([]byte(extractJSONBlock(text)), &full); err == nil && full != nil {
		return full
	}

	for _, loc := range partialKeyRe.FindAllStringSubmatchIndex(text, -1) {
		key := text[loc[2]:loc[3]]

		rest := strings.TrimLeft(text[loc[1]:], " \t\n\r")
		if rest == "" {
			continue
		}

		if v, ok := decodeFirstValue(rest); ok {
			results[key] = v
			continue
		}

		// Containers with internal syntax errors: isolate the balanced span
		// and give it one repair pass.
		if rest[0] == '{' || rest[0] == '[' {
			span := balancedSpan(rest)
			if span == "" {
				continue
			}
			if v, ok := decodeFirstValue(RepairSyntax(span)); ok {
				results[key] = v
			}
		}
	}

	return results
}

// decodeFirstValue decodes the first JSON value at the start of s, ignoring
// any trailing content.
func decodeFirstValue(s string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// balancedSpan returns the shortest prefix of s spanning the container that
// opens at s[0], honoring string literals and escapes. Returns "" when the
// container never closes.
func balancedSpan(s string) string {
	open := s[0]
	var closeCh byte
	switch open {
	case '{':
		closeCh = '}'
	case '[':
		closeCh = ']'
	default:
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == closeCh:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
