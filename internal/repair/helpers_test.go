package repair_test

import (
	"math"

	"github.com/tickerlens/tickerlens/internal/repair"
)

// quoteSchema is a minimal trade-quote schema: timeframe and direction
// enums plus a numeric price, all required.
type quoteSchema struct{}

var (
	quoteTimeframes = []string{"swing_trade", "day_trade", "scalp", "position", "long_term", "short_term"}
	quoteDirections = []string{"long", "short", "neutral"}
)

func (quoteSchema) Name() string { return "TradeQuote" }

func (quoteSchema) Validate(doc map[string]any) []repair.ValidationError {
	var errs []repair.ValidationError

	errs = append(errs, checkEnum(doc, "timeframe", quoteTimeframes)...)
	errs = append(errs, checkEnum(doc, "direction", quoteDirections)...)

	if v, ok := doc["price"]; !ok || v == nil {
		errs = append(errs, verr("price", repair.KindMissingRequired, "field required", nil))
	} else if _, ok := v.(float64); !ok {
		errs = append(errs, verr("price", repair.KindWrongType, "expected number", v))
	}

	return errs
}

func (quoteSchema) EnumValues(p repair.Path) []string {
	switch p.Leaf() {
	case "timeframe":
		return quoteTimeframes
	case "direction":
		return quoteDirections
	}
	return nil
}

func (quoteSchema) RequiredFields() []repair.Path {
	return []repair.Path{
		{repair.KeyStep("timeframe")},
		{repair.KeyStep("direction")},
		{repair.KeyStep("price")},
	}
}

func (quoteSchema) DefaultFor(p repair.Path) (any, bool) {
	if p.Leaf() == "direction" {
		return "neutral", true
	}
	return nil, false
}

// planSchema models the frame-plan shape: an integer count and a list of
// moments, both required. The count has a safe default; the list shape does
// not, so container mismatches escalate to LLM repair.
type planSchema struct{}

func (planSchema) Name() string { return "FramePlan" }

func (planSchema) Validate(doc map[string]any) []repair.ValidationError {
	var errs []repair.ValidationError

	if v, ok := doc["suggested_count"]; !ok || v == nil {
		errs = append(errs, verr("suggested_count", repair.KindMissingRequired, "field required", nil))
	} else if f, ok := v.(float64); !ok || f != math.Trunc(f) {
		errs = append(errs, verr("suggested_count", repair.KindWrongType, "expected integer", v))
	}

	if v, ok := doc["key_moments"]; !ok || v == nil {
		errs = append(errs, verr("key_moments", repair.KindMissingRequired, "field required", nil))
	} else if _, ok := v.([]any); !ok {
		errs = append(errs, verr("key_moments", repair.KindWrongShape, "expected list", v))
	}

	return errs
}

func (planSchema) EnumValues(repair.Path) []string { return nil }

func (planSchema) RequiredFields() []repair.Path {
	return []repair.Path{
		{repair.KeyStep("suggested_count")},
		{repair.KeyStep("key_moments")},
	}
}

func (planSchema) DefaultFor(p repair.Path) (any, bool) {
	if p.Leaf() == "suggested_count" {
		return float64(0), true
	}
	return nil, false
}

func checkEnum(doc map[string]any, field string, legal []string) []repair.ValidationError {
	v, ok := doc[field]
	if !ok || v == nil {
		return []repair.ValidationError{verr(field, repair.KindMissingRequired, "field required", nil)}
	}
	s, ok := v.(string)
	if !ok {
		return []repair.ValidationError{verr(field, repair.KindWrongType, "expected string", v)}
	}
	for _, l := range legal {
		if s == l {
			return nil
		}
	}
	return []repair.ValidationError{verr(field, repair.KindNotInEnum, "not in enum", s)}
}

func verr(field string, kind repair.ErrorKind, msg string, value any) repair.ValidationError {
	return repair.ValidationError{
		Path:    repair.Path{repair.KeyStep(field)},
		Kind:    kind,
		Message: msg,
		Value:   value,
	}
}
