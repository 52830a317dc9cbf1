package analysis

import (
	"fmt"
	"math"

	"github.com/tickerlens/tickerlens/internal/repair"
)

// Compile-time assertion that IntelligenceSchema satisfies repair.Schema.
var _ repair.Schema = (*IntelligenceSchema)(nil)

// IntelligenceSchema validates documents against the [Intelligence] shape.
// It is stateless and safe for concurrent use.
type IntelligenceSchema struct{}

// NewIntelligenceSchema returns the schema for transcript intelligence
// documents.
func NewIntelligenceSchema() *IntelligenceSchema {
	return &IntelligenceSchema{}
}

// Name implements [repair.Schema.Name].
func (s *IntelligenceSchema) Name() string {
	return "transcript_intelligence"
}

// canonical renders a path with every sequence index collapsed to 0, so
// lookups work for any element of a list.
func canonical(path repair.Path) string {
	out := make(repair.Path, len(path))
	for i, step := range path {
		if step.IsIndex {
			out[i] = repair.IndexStep(0)
		} else {
			out[i] = step
		}
	}
	return out.String()
}

var enumsByPath = map[string][]string{
	"content_type":         ContentTypes,
	"analysis_style":       AnalysisStyles,
	"market_context":       MarketContexts,
	"signals[0].direction": Directions,
	"signals[0].timeframe": Timeframes,
}

// EnumValues implements [repair.Schema.EnumValues].
func (s *IntelligenceSchema) EnumValues(path repair.Path) []string {
	return enumsByPath[canonical(path)]
}

// RequiredFields implements [repair.Schema.RequiredFields].
func (s *IntelligenceSchema) RequiredFields() []repair.Path {
	signals := repair.Path{}.Child("signals").At(0)
	levels := repair.Path{}.Child("price_levels").At(0)
	plan := repair.Path{}.Child("frame_extraction_plan")
	moments := plan.Child("key_moments").At(0)

	return []repair.Path{
		repair.Path{}.Child("content_type"),
		repair.Path{}.Child("analysis_style"),
		repair.Path{}.Child("market_context"),
		repair.Path{}.Child("classification_confidence"),
		repair.Path{}.Child("executive_summary"),
		plan,
		plan.Child("suggested_count"),
		plan.Child("coverage_interval_seconds"),
		signals.Child("asset"),
		signals.Child("direction"),
		signals.Child("timeframe"),
		signals.Child("confidence"),
		levels.Child("price"),
		levels.Child("type"),
		levels.Child("confidence"),
		moments.Child("time"),
		moments.Child("importance"),
		moments.Child("reason"),
	}
}

// DefaultFor implements [repair.Schema.DefaultFor]. Only fields with a safe,
// context-free value have defaults; fields carrying extracted data (asset
// symbols, prices) never do, so their absence escalates to LLM repair.
func (s *IntelligenceSchema) DefaultFor(path repair.Path) (any, bool) {
	switch canonical(path) {
	case "content_type":
		return string(ContentGeneral), true
	case "analysis_style":
		return string(StyleMixed), true
	case "market_context":
		return string(MarketNeutral), true
	case "classification_confidence":
		return float64(0.5), true
	case "executive_summary":
		return "", true
	case "frame_extraction_plan":
		return map[string]any{
			"suggested_count":           float64(10),
			"key_moments":               []any{},
			"coverage_interval_seconds": float64(180),
		}, true
	case "frame_extraction_plan.suggested_count":
		return float64(10), true
	case "frame_extraction_plan.coverage_interval_seconds":
		return float64(180), true
	case "signals[0].direction":
		return string(DirectionNeutral), true
	case "signals[0].timeframe":
		return string(TimeframeUnspecified), true
	}
	return nil, false
}

// Validate implements [repair.Schema.Validate]. Unknown fields are ignored;
// the LLM routinely invents extras and they are harmless.
func (s *IntelligenceSchema) Validate(doc map[string]any) []repair.ValidationError {
	v := &validator{doc: doc}

	root := repair.Path{}
	v.requireEnum(root.Child("content_type"), doc, ContentTypes)
	v.requireEnum(root.Child("analysis_style"), doc, AnalysisStyles)
	v.requireEnum(root.Child("market_context"), doc, MarketContexts)
	v.requireNumber(root.Child("classification_confidence"), doc, 0, 1)
	v.requireString(root.Child("executive_summary"), doc)
	v.optionalString(root.Child("primary_asset"), doc)
	v.optionalString(root.Child("full_cleaned_text"), doc)

	for _, key := range []string{"assets_discussed", "indicators_mentioned", "patterns_identified", "key_topics"} {
		v.stringList(root.Child(key), doc)
	}

	v.signals(root.Child("signals"), doc)
	v.levels(root.Child("price_levels"), doc)
	v.plan(root.Child("frame_extraction_plan"), doc)

	return v.errs
}

// validator accumulates validation errors during one Validate pass.
type validator struct {
	doc  map[string]any
	errs []repair.ValidationError
}

func (v *validator) add(path repair.Path, kind repair.ErrorKind, value any, format string, args ...any) {
	v.errs = append(v.errs, repair.ValidationError{
		Path:    path,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Value:   value,
	})
}

func (v *validator) requireEnum(path repair.Path, obj map[string]any, allowed []string) {
	val, ok := obj[path.Leaf()]
	if !ok || val == nil {
		v.add(path, repair.KindMissingRequired, nil, "required field missing")
		return
	}
	str, ok := val.(string)
	if !ok {
		v.add(path, repair.KindWrongType, val, "expected string, got %T", val)
		return
	}
	for _, a := range allowed {
		if str == a {
			return
		}
	}
	v.add(path, repair.KindNotInEnum, str, "%q is not one of %v", str, allowed)
}

func (v *validator) requireNumber(path repair.Path, obj map[string]any, min, max float64) {
	val, ok := obj[path.Leaf()]
	if !ok || val == nil {
		v.add(path, repair.KindMissingRequired, nil, "required field missing")
		return
	}
	n, ok := val.(float64)
	if !ok {
		v.add(path, repair.KindWrongType, val, "expected number, got %T", val)
		return
	}
	if n < min || n > max {
		v.add(path, repair.KindOutOfRange, n, "%v outside [%v, %v]", n, min, max)
	}
}

func (v *validator) requireInteger(path repair.Path, obj map[string]any, min, max float64) {
	val, ok := obj[path.Leaf()]
	if !ok || val == nil {
		v.add(path, repair.KindMissingRequired, nil, "required field missing")
		return
	}
	n, ok := val.(float64)
	if !ok || n != math.Trunc(n) {
		v.add(path, repair.KindWrongType, val, "expected integer, got %v", val)
		return
	}
	if n < min || n > max {
		v.add(path, repair.KindOutOfRange, n, "%v outside [%v, %v]", n, min, max)
	}
}

func (v *validator) requireString(path repair.Path, obj map[string]any) {
	val, ok := obj[path.Leaf()]
	if !ok || val == nil {
		v.add(path, repair.KindMissingRequired, nil, "required field missing")
		return
	}
	if _, ok := val.(string); !ok {
		v.add(path, repair.KindWrongType, val, "expected string, got %T", val)
	}
}

func (v *validator) optionalString(path repair.Path, obj map[string]any) {
	val, ok := obj[path.Leaf()]
	if !ok || val == nil {
		return
	}
	if _, ok := val.(string); !ok {
		v.add(path, repair.KindWrongType, val, "expected string, got %T", val)
	}
}

// stringList validates an optional list-of-strings field.
func (v *validator) stringList(path repair.Path, obj map[string]any) {
	val, ok := obj[path.Leaf()]
	if !ok || val == nil {
		return
	}
	list, ok := val.([]any)
	if !ok {
		v.add(path, repair.KindWrongShape, val, "expected list, got %T", val)
		return
	}
	for i, item := range list {
		if _, ok := item.(string); !ok {
			v.add(path.At(i), repair.KindWrongType, item, "expected string, got %T", item)
		}
	}
}

// elements validates an optional list-of-objects field and invokes check for
// each mapping element.
func (v *validator) elements(path repair.Path, obj map[string]any, check func(repair.Path, map[string]any)) {
	val, ok := obj[path.Leaf()]
	if !ok || val == nil {
		return
	}
	list, ok := val.([]any)
	if !ok {
		v.add(path, repair.KindWrongShape, val, "expected list, got %T", val)
		return
	}
	for i, item := range list {
		elem, ok := item.(map[string]any)
		if !ok {
			v.add(path.At(i), repair.KindWrongShape, item, "expected object, got %T", item)
			continue
		}
		check(path.At(i), elem)
	}
}

func (v *validator) signals(path repair.Path, obj map[string]any) {
	v.elements(path, obj, func(p repair.Path, sig map[string]any) {
		v.requireString(p.Child("asset"), sig)
		v.requireEnum(p.Child("direction"), sig, Directions)
		v.requireEnum(p.Child("timeframe"), sig, Timeframes)
		v.requireNumber(p.Child("confidence"), sig, 0, 1)
		v.optionalString(p.Child("entry_price"), sig)
		v.optionalString(p.Child("target_price"), sig)
		v.optionalString(p.Child("stop_loss"), sig)
		v.optionalString(p.Child("rationale"), sig)
		if _, ok := sig["timestamp"]; ok && sig["timestamp"] != nil {
			v.requireInteger(p.Child("timestamp"), sig, 0, math.MaxFloat64)
		}
	})
}

func (v *validator) levels(path repair.Path, obj map[string]any) {
	v.elements(path, obj, func(p repair.Path, lvl map[string]any) {
		v.requireNumber(p.Child("price"), lvl, math.SmallestNonzeroFloat64, math.MaxFloat64)
		v.requireString(p.Child("type"), lvl)
		v.requireNumber(p.Child("confidence"), lvl, 0, 1)
		v.optionalString(p.Child("label"), lvl)
		v.optionalString(p.Child("context"), lvl)
		if _, ok := lvl["timestamp"]; ok && lvl["timestamp"] != nil {
			v.requireInteger(p.Child("timestamp"), lvl, 0, math.MaxFloat64)
		}
	})
}

func (v *validator) plan(path repair.Path, obj map[string]any) {
	val, ok := obj[path.Leaf()]
	if !ok || val == nil {
		v.add(path, repair.KindMissingRequired, nil, "required field missing")
		return
	}
	plan, ok := val.(map[string]any)
	if !ok {
		v.add(path, repair.KindWrongShape, val, "expected object, got %T", val)
		return
	}

	v.requireInteger(path.Child("suggested_count"), plan, 5, 30)
	v.requireInteger(path.Child("coverage_interval_seconds"), plan, 1, math.MaxFloat64)

	v.elements(path.Child("key_moments"), plan, func(p repair.Path, m map[string]any) {
		v.requireInteger(p.Child("time"), m, 0, math.MaxFloat64)
		v.requireNumber(p.Child("importance"), m, 0, 1)
		v.requireString(p.Child("reason"), m)
	})
}
