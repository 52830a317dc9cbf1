package repair

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedJSONRe  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

	// Missing-comma patterns. Go regexp has no lookahead, so the following
	// token is captured and re-inserted after the comma.
	missingCommaObjObj = regexp.MustCompile(`(\})(\s*\{)`)
	missingCommaArrArr = regexp.MustCompile(`(\])(\s*\[)`)
	missingCommaStrObj = regexp.MustCompile(`(")(\s+\{)`)
	missingCommaLitStr = regexp.MustCompile(`(true|false|null|[0-9])(\s+")`)

	unclosedStringRe = regexp.MustCompile(`("[^"]*)(\s*[,}\]])`)
)

// RepairSyntax applies best-effort fixes for the JSON syntax errors LLMs
// commonly produce: markdown fencing, raw control characters inside string
// values, trailing commas, missing commas between adjacent structural
// tokens, typographic quotes, and unclosed string literals at end of input.
//
// It never panics and never fails; transformations that cannot be
// confidently applied are skipped. Already-valid JSON passes through
// structurally unchanged. The output is not guaranteed to parse — callers
// must still attempt a parse and fall back to [ExtractPartial].
func RepairSyntax(text string) string {
	text = extractJSONBlock(text)
	if json.Valid([]byte(text)) {
		return text
	}

	text = escapeControlCharsInStrings(text)
	text = trailingComma.ReplaceAllString(text, "$1")
	text = fixMissingCommas(text)
	text = normalizeQuotes(text)
	text = fixUnclosedStrings(text)
	return text
}

// extractJSONBlock strips markdown code fences and surrounding prose,
// returning the JSON-looking span of the input. When no structural tokens
// are found the input is returned as-is.
func extractJSONBlock(text string) string {
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}

	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "}]")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// escapeControlCharsInStrings escapes literal newline, carriage-return, and
// tab characters that occur inside quoted string values. Quote state is
// tracked character by character, toggling on unescaped '"'.
func escapeControlCharsInStrings(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString := false
	escaped := false

	for _, r := range text {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		switch {
		case r == '\\' && inString:
			b.WriteRune(r)
			escaped = true
		case r == '"':
			inString = !inString
			b.WriteRune(r)
		case inString && r == '\n':
			b.WriteString(`\n`)
		case inString && r == '\r':
			b.WriteString(`\r`)
		case inString && r == '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// fixMissingCommas inserts commas between adjacent closing-then-opening
// structural tokens, a common slip when models emit arrays of objects.
func fixMissingCommas(text string) string {
	text = missingCommaObjObj.ReplaceAllString(text, "$1,$2")
	text = missingCommaArrArr.ReplaceAllString(text, "$1,$2")
	text = missingCommaStrObj.ReplaceAllString(text, "$1,$2")
	text = missingCommaLitStr.ReplaceAllString(text, "$1,$2")
	return text
}

// normalizeQuotes replaces typographic quote characters with their plain
// ASCII equivalents.
func normalizeQuotes(text string) string {
	r := strings.NewReplacer(
		"“", `"`, // left double quotation mark
		"”", `"`, // right double quotation mark
		"‘", "'", // left single quotation mark
		"’", "'", // right single quotation mark
	)
	return r.Replace(text)
}

// fixUnclosedStrings attempts to close an obviously unclosed string literal
// at end of input. Applied only when the text contains an odd number of
// unescaped quotes; the closing quote is inserted before the last structural
// delimiter that follows an open string span.
func fixUnclosedStrings(text string) string {
	if countUnescapedQuotes(text)%2 == 0 {
		return text
	}

	matches := unclosedStringRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	last := matches[len(matches)-1]
	insertAt := last[3] // end of the open-string group
	if insertAt < len(text) && text[insertAt] == '"' {
		return text
	}
	return text[:insertAt] + `"` + text[insertAt:]
}

// countUnescapedQuotes counts '"' characters not preceded by a backslash.
func countUnescapedQuotes(text string) int {
	n := 0
	escaped := false
	for _, r := range text {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '"':
			n++
		}
	}
	return n
}
