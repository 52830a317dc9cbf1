package repair

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Normalize canonicalizes enum-like strings and coerces scalar types across
// doc according to rules, matching rules by leaf key name at every nesting
// level. The input is never mutated; the returned document is a deep copy.
// Each applied change appends one "path: old -> new" entry to the change
// log. Coercions that fail (non-numeric garbage) leave the value unchanged.
//
// Normalize is idempotent: re-normalizing its own output yields an equal
// document and an empty change log.
func Normalize(doc map[string]any, rules *Rules) (map[string]any, []string) {
	changes := []string{}
	if doc == nil {
		return map[string]any{}, changes
	}

	out := shallowCopyMap(doc)

	// Explicit worklist rather than recursion: LLM output nests arbitrarily
	// deep. Nested containers are copied as they are reached, so out shares
	// no structure with doc.
	type task struct {
		node any
		path Path
	}
	queue := []task{{node: out}}

	for head := 0; head < len(queue); head++ {
		t := queue[head]
		switch n := t.node.(type) {
		case map[string]any:
			for _, key := range sortedKeys(n) {
				p := t.path.Child(key)
				switch v := n[key].(type) {
				case map[string]any:
					cp := shallowCopyMap(v)
					n[key] = cp
					queue = append(queue, task{cp, p})
				case []any:
					cp := shallowCopySlice(v)
					n[key] = cp
					queue = append(queue, task{cp, p})
				default:
					n[key] = normalizeLeaf(key, v, p, rules, &changes)
				}
			}
		case []any:
			for i, el := range n {
				p := t.path.At(i)
				switch v := el.(type) {
				case map[string]any:
					cp := shallowCopyMap(v)
					n[i] = cp
					queue = append(queue, task{cp, p})
				case []any:
					cp := shallowCopySlice(v)
					n[i] = cp
					queue = append(queue, task{cp, p})
				}
			}
		}
	}

	return out, changes
}

// normalizeLeaf applies enum synonyms, type coercion, and whitespace
// trimming to a single scalar value keyed by its leaf field name.
func normalizeLeaf(key string, v any, p Path, rules *Rules, changes *[]string) any {
	if s, ok := v.(string); ok {
		if syn := rules.enumFor(key); syn != nil {
			lookup := strings.ToLower(strings.TrimSpace(s))
			if canonical, ok := syn[lookup]; ok && canonical != s {
				*changes = append(*changes, fmt.Sprintf("%s: '%s' -> '%s'", p, s, canonical))
				v = canonical
				s = canonical
			}
		}
	}

	if kind, ok := rules.coercionFor(key); ok {
		v = coerce(kind, v, p, changes)
	}

	if s, ok := v.(string); ok {
		if trimmed := strings.TrimSpace(s); trimmed != s {
			*changes = append(*changes, fmt.Sprintf("%s: trimmed whitespace", p))
			v = trimmed
		}
	}

	return v
}

// coerce applies one CoercionKind to a scalar. Numbers follow the
// encoding/json convention: every numeric value is a float64, with integer
// fields held as integral float64 values.
func coerce(kind CoercionKind, v any, p Path, changes *[]string) any {
	switch kind {
	case CoerceFloat:
		s, ok := v.(string)
		if !ok {
			return v
		}
		cleaned := strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(s))
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return v
		}
		*changes = append(*changes, fmt.Sprintf("%s: '%s' -> %v", p, s, f))
		return f

	case CoerceInt:
		switch n := v.(type) {
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return v
			}
			i := float64(int64(f))
			*changes = append(*changes, fmt.Sprintf("%s: '%s' -> %v", p, n, i))
			return i
		case float64:
			if i := float64(int64(n)); i != n {
				*changes = append(*changes, fmt.Sprintf("%s: %v -> %v", p, n, i))
				return i
			}
		}
		return v

	case CoercePriceString:
		switch n := v.(type) {
		case float64:
			var formatted string
			if n == float64(int64(n)) {
				formatted = "$" + humanize.Comma(int64(n))
			} else {
				formatted = "$" + humanize.FormatFloat("#,###.##", n)
			}
			*changes = append(*changes, fmt.Sprintf("%s: %v -> '%s'", p, n, formatted))
			return formatted
		case string:
			if n == "" || strings.HasPrefix(n, "$") || strings.HasPrefix(n, "N") {
				return v
			}
			if _, err := strconv.ParseFloat(strings.ReplaceAll(n, ",", ""), 64); err != nil {
				return v
			}
			formatted := "$" + n
			*changes = append(*changes, fmt.Sprintf("%s: '%s' -> '%s'", p, n, formatted))
			return formatted
		}
		return v
	}
	return v
}

func shallowCopyMap(m map[string]any) map[string]any {
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func shallowCopySlice(s []any) []any {
	cp := make([]any, len(s))
	copy(cp, s)
	return cp
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
