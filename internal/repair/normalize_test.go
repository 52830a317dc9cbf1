package repair_test

import (
	"reflect"
	"testing"

	"github.com/tickerlens/tickerlens/internal/repair"
)

func TestNormalize_EnumSynonyms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  map[string]any
		want map[string]any
	}{
		{
			name: "timeframe swing",
			doc:  map[string]any{"timeframe": "swing"},
			want: map[string]any{"timeframe": "swing_trade"},
		},
		{
			name: "direction buy",
			doc:  map[string]any{"direction": "buy"},
			want: map[string]any{"direction": "long"},
		},
		{
			name: "level type stop loss",
			doc:  map[string]any{"type": "stop loss"},
			want: map[string]any{"type": "stop_loss"},
		},
		{
			name: "case and whitespace insensitive lookup",
			doc:  map[string]any{"direction": "  Bearish "},
			want: map[string]any{"direction": "short"},
		},
		{
			name: "substring field name match",
			doc:  map[string]any{"market_context": "uptrend"},
			want: map[string]any{"market_context": "bullish"},
		},
		{
			name: "unknown synonym left for fuzzy matching",
			doc:  map[string]any{"direction": "longish"},
			want: map[string]any{"direction": "longish"},
		},
		{
			name: "nested and sequence positions",
			doc: map[string]any{
				"signals": []any{
					map[string]any{"direction": "sell"},
					map[string]any{"direction": "bullish"},
				},
			},
			want: map[string]any{
				"signals": []any{
					map[string]any{"direction": "short"},
					map[string]any{"direction": "long"},
				},
			},
		},
	}

	rules := repair.DefaultRules()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, _ := repair.Normalize(tt.doc, rules)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestNormalize_TypeCoercion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  map[string]any
		want map[string]any
	}{
		{
			name: "price string with currency and separators",
			doc:  map[string]any{"price": "$65,200.50"},
			want: map[string]any{"price": 65200.50},
		},
		{
			name: "confidence string",
			doc:  map[string]any{"confidence": "0.85"},
			want: map[string]any{"confidence": 0.85},
		},
		{
			name: "timestamp string truncated to integer",
			doc:  map[string]any{"timestamp": "42.9"},
			want: map[string]any{"timestamp": 42.0},
		},
		{
			name: "suggested_count float truncated",
			doc:  map[string]any{"suggested_count": 7.0},
			want: map[string]any{"suggested_count": 7.0},
		},
		{
			name: "entry_price number formatted as price string",
			doc:  map[string]any{"entry_price": 65200.0},
			want: map[string]any{"entry_price": "$65,200"},
		},
		{
			name: "target_price fractional number formatted with decimals",
			doc:  map[string]any{"target_price": 1234.5},
			want: map[string]any{"target_price": "$1,234.50"},
		},
		{
			name: "stop_loss numeric string gains dollar prefix",
			doc:  map[string]any{"stop_loss": "64,000"},
			want: map[string]any{"stop_loss": "$64,000"},
		},
		{
			name: "non-numeric garbage left unchanged",
			doc:  map[string]any{"price": "around the highs"},
			want: map[string]any{"price": "around the highs"},
		},
		{
			name: "not-applicable price string left unchanged",
			doc:  map[string]any{"target_price": "N/A"},
			want: map[string]any{"target_price": "N/A"},
		},
	}

	rules := repair.DefaultRules()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, _ := repair.Normalize(tt.doc, rules)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	doc := map[string]any{
		"timeframe":  "swing",
		"direction":  "buy",
		"price":      "$65,200",
		"confidence": "0.9",
		"summary":    "  padded  ",
		"signals": []any{
			map[string]any{"direction": "sell", "entry_price": 64000.0},
		},
	}
	rules := repair.DefaultRules()

	once, changes := repair.Normalize(doc, rules)
	if len(changes) == 0 {
		t.Fatal("first pass should report changes")
	}

	twice, again := repair.Normalize(once, rules)
	if len(again) != 0 {
		t.Errorf("second pass reported changes: %v", again)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("second pass altered document:\nonce:  %#v\ntwice: %#v", once, twice)
	}
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	doc := map[string]any{
		"direction": "buy",
		"signals":   []any{map[string]any{"timeframe": "swing"}},
	}

	_, _ = repair.Normalize(doc, repair.DefaultRules())

	if doc["direction"] != "buy" {
		t.Errorf("input top-level mutated: %v", doc["direction"])
	}
	inner := doc["signals"].([]any)[0].(map[string]any)
	if inner["timeframe"] != "swing" {
		t.Errorf("input nested value mutated: %v", inner["timeframe"])
	}
}

func TestNormalize_ChangeLogFormat(t *testing.T) {
	t.Parallel()

	doc := map[string]any{
		"signals": []any{map[string]any{"direction": "buy"}},
	}

	_, changes := repair.Normalize(doc, repair.DefaultRules())

	if len(changes) != 1 {
		t.Fatalf("changes = %v, want exactly one", changes)
	}
	want := "signals[0].direction: 'buy' -> 'long'"
	if changes[0] != want {
		t.Errorf("change = %q, want %q", changes[0], want)
	}
}
