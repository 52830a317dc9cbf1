package repair

import (
	"sort"
	"strings"
)

// CoercionKind declares the canonical scalar form for a type-coerced field.
type CoercionKind int

const (
	// CoerceFloat parses the value as a float, stripping currency symbols
	// and thousands separators from strings.
	CoerceFloat CoercionKind = iota

	// CoerceInt parses the value as an integer, truncating floats.
	CoerceInt

	// CoercePriceString formats numeric values as "$1,234.56" strings and
	// prefixes bare numeric strings with "$".
	CoercePriceString
)

// Rules is the read-only normalization rule table consumed by [Normalize].
// It maps leaf field names to enum synonym tables and type coercions. Rules
// values are immutable after construction and safe to share across
// concurrent chunk repairs.
type Rules struct {
	enums     map[string]map[string]string
	coercions map[string]CoercionKind
}

// NewRules constructs a Rules table from enum synonym maps (outer key is
// the field name, inner map is raw-lowercase to canonical) and coercion
// declarations keyed by field name. Both maps are deep-copied.
func NewRules(enums map[string]map[string]string, coercions map[string]CoercionKind) *Rules {
	r := &Rules{
		enums:     make(map[string]map[string]string, len(enums)),
		coercions: make(map[string]CoercionKind, len(coercions)),
	}
	for field, syn := range enums {
		cp := make(map[string]string, len(syn))
		for k, v := range syn {
			cp[k] = v
		}
		r.enums[field] = cp
	}
	for field, kind := range coercions {
		r.coercions[field] = kind
	}
	return r
}

// DefaultRules returns the trading-domain rule table: timeframe, direction,
// level type, market context, and analysis style synonyms, plus the numeric
// and price-string coercions the intelligence schema expects.
func DefaultRules() *Rules {
	return NewRules(map[string]map[string]string{
		"timeframe": {
			"swing":       "swing_trade",
			"swing trade": "swing_trade",
			"swingtrade":  "swing_trade",
			"day":         "day_trade",
			"daytrade":    "day_trade",
			"day trade":   "day_trade",
			"scalp":       "scalp",
			"scalping":    "scalp",
			"position":    "position",
			"long":        "long_term",
			"long term":   "long_term",
			"long-term":   "long_term",
			"longterm":    "long_term",
			"short":       "short_term",
			"short term":  "short_term",
			"short-term":  "short_term",
			"shortterm":   "short_term",
			"hourly":      "day_trade",
			"4h":          "swing_trade",
			"daily":       "swing_trade",
			"weekly":      "position",
			"monthly":     "long_term",
		},
		"direction": {
			"long":     "long",
			"buy":      "long",
			"bullish":  "long",
			"up":       "long",
			"short":    "short",
			"sell":     "short",
			"bearish":  "short",
			"down":     "short",
			"neutral":  "neutral",
			"flat":     "neutral",
			"sideways": "neutral",
		},
		"type": {
			"support":     "support",
			"resistance":  "resistance",
			"entry":       "entry",
			"entry point": "entry",
			"entry zone":  "entry",
			"target":      "target",
			"take profit": "target",
			"tp":          "target",
			"stop loss":   "stop_loss",
			"stop-loss":   "stop_loss",
			"stoploss":    "stop_loss",
			"sl":          "stop_loss",
			"other":       "other",
		},
		"market_context": {
			"bullish":   "bullish",
			"bearish":   "bearish",
			"neutral":   "neutral",
			"mixed":     "mixed",
			"sideways":  "neutral",
			"ranging":   "neutral",
			"uptrend":   "bullish",
			"downtrend": "bearish",
		},
		"analysis_style": {
			"technical":   "technical",
			"fundamental": "fundamental",
			"news":        "news",
			"mixed":       "mixed",
			"sentiment":   "mixed",
		},
	}, map[string]CoercionKind{
		"price":                     CoerceFloat,
		"confidence":                CoerceFloat,
		"timestamp":                 CoerceInt,
		"suggested_count":           CoerceInt,
		"coverage_interval_seconds": CoerceInt,
		"target_price":              CoercePriceString,
		"entry_price":               CoercePriceString,
		"stop_loss":                 CoercePriceString,
	})
}

// enumFor returns the synonym table applying to the given leaf field name.
// A field matches a rule when its name equals the rule's field or contains
// it as a substring, so "level_type" picks up the "type" synonyms.
func (r *Rules) enumFor(field string) map[string]string {
	if syn, ok := r.enums[field]; ok {
		return syn
	}
	lower := strings.ToLower(field)
	// Deterministic rule selection when several rule fields are substrings
	// of the same key.
	ruleFields := make([]string, 0, len(r.enums))
	for ruleField := range r.enums {
		ruleFields = append(ruleFields, ruleField)
	}
	sort.Strings(ruleFields)
	for _, ruleField := range ruleFields {
		if strings.Contains(lower, ruleField) {
			return r.enums[ruleField]
		}
	}
	return nil
}

// coercionFor returns the coercion declared for the leaf field name.
func (r *Rules) coercionFor(field string) (CoercionKind, bool) {
	kind, ok := r.coercions[field]
	return kind, ok
}
