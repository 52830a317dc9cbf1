package repair

import (
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
)

// DefaultSimilarityThreshold is the minimum Jaro-Winkler score at which an
// invalid enum value is snapped to its closest legal value.
const DefaultSimilarityThreshold = 0.6

// FixErrors applies deterministic fixes for the validation errors phases 1
// left behind: invalid enum values are fuzzy-matched against the field's
// legal set and missing required fields receive schema-declared defaults.
// Structural errors (wrong shape, wrong type, out of range) are not touched
// here; they escalate to LLM repair.
//
// The input document is never mutated. Each applied fix appends one entry
// to the returned change log.
func FixErrors(doc map[string]any, errs []ValidationError, schema Schema, threshold float64) (map[string]any, []string) {
	changes := []string{}
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	out := deepCopyDoc(doc)

	for _, e := range errs {
		switch e.Kind {
		case KindNotInEnum:
			val, ok := getAtPath(out, e.Path)
			if !ok {
				continue
			}
			s, ok := val.(string)
			if !ok {
				continue
			}
			legal := schema.EnumValues(e.Path)
			if len(legal) == 0 {
				continue
			}
			if match, ok := fuzzyMatchEnum(s, legal, threshold); ok {
				if setAtPath(out, e.Path, match) {
					changes = append(changes, fmt.Sprintf("%s: '%s' -> '%s'", e.Path, s, match))
				}
			}

		case KindMissingRequired:
			def, ok := schema.DefaultFor(e.Path)
			if !ok {
				continue
			}
			// Covers both absent fields and fields present as null.
			if setAtPath(out, e.Path, def) {
				changes = append(changes, fmt.Sprintf("%s: added default '%v'", e.Path, def))
			}
		}
	}

	return out, changes
}

// fuzzyMatchEnum resolves value against the legal enum set: exact
// case-insensitive match first, then substring containment, then the best
// Jaro-Winkler score at or above threshold. Returns false when no candidate
// clears the bar, leaving the error for LLM repair.
func fuzzyMatchEnum(value string, legal []string, threshold float64) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(value))
	if lower == "" {
		return "", false
	}

	for _, v := range legal {
		if strings.ToLower(v) == lower {
			return v, true
		}
	}

	for _, v := range legal {
		vl := strings.ToLower(v)
		if strings.Contains(vl, lower) || strings.Contains(lower, vl) {
			return v, true
		}
	}

	best := ""
	bestScore := 0.0
	for _, v := range legal {
		score := matchr.JaroWinkler(lower, strings.ToLower(v), false)
		if score > bestScore {
			best, bestScore = v, score
		}
	}
	if bestScore >= threshold {
		return best, true
	}
	return "", false
}
