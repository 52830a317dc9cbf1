package repair_test

import (
	"reflect"
	"testing"

	"github.com/tickerlens/tickerlens/internal/repair"
)

func TestExtractPartial_RecoversSubset(t *testing.T) {
	t.Parallel()

	// The asset field is fine, the signals array is truncated mid-object.
	input := `{"asset": "BTC", "confidence": 0.8, "signals": [{"direction": "long", "entry`

	got := repair.ExtractPartial(input)

	if got["asset"] != "BTC" {
		t.Errorf("asset = %v, want BTC", got["asset"])
	}
	if got["confidence"] != 0.8 {
		t.Errorf("confidence = %v, want 0.8", got["confidence"])
	}
	if _, ok := got["entry"]; ok {
		t.Error("truncated key 'entry' should not be recovered")
	}
}

func TestExtractPartial_GarbageYieldsEmpty(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"complete nonsense",
		"[[[[",
		"\\\\\\\"",
	}

	for _, input := range inputs {
		got := repair.ExtractPartial(input)
		if got == nil {
			t.Fatalf("ExtractPartial(%q) returned nil, want empty map", input)
		}
		if len(got) != 0 {
			t.Errorf("ExtractPartial(%q) = %v, want empty", input, got)
		}
	}
}

func TestExtractPartial_FullObjectWithTrailingGarbage(t *testing.T) {
	t.Parallel()

	got := repair.ExtractPartial(`{"a": 1, "b": [2, 3]} and then the model kept talking`)

	want := map[string]any{"a": 1.0, "b": []any{2.0, 3.0}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestExtractPartial_RepairsContainerValues(t *testing.T) {
	t.Parallel()

	// The levels array has a trailing comma; it should survive via the
	// single repair pass on the isolated span.
	input := `garbage before {"levels": [{"price": 1.0},], broken`

	got := repair.ExtractPartial(input)

	levels, ok := got["levels"].([]any)
	if !ok {
		t.Fatalf("levels not recovered as array: %#v", got["levels"])
	}
	if len(levels) != 1 {
		t.Fatalf("len(levels) = %d, want 1", len(levels))
	}
}
