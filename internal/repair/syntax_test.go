package repair_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/tickerlens/tickerlens/internal/repair"
)

func TestRepairSyntax_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  map[string]any
	}{
		{
			name:  "trailing comma before brace",
			input: `{"a": 1,}`,
			want:  map[string]any{"a": 1.0},
		},
		{
			name:  "trailing comma before bracket",
			input: `{"a": [1, 2,]}`,
			want:  map[string]any{"a": []any{1.0, 2.0}},
		},
		{
			name:  "markdown fence with language tag",
			input: "```json\n{\"a\": 1}\n```",
			want:  map[string]any{"a": 1.0},
		},
		{
			name:  "markdown fence without language tag",
			input: "```\n{\"a\": 1}\n```",
			want:  map[string]any{"a": 1.0},
		},
		{
			name:  "surrounding prose",
			input: "Here is the result:\n{\"a\": 1}\nHope that helps!",
			want:  map[string]any{"a": 1.0},
		},
		{
			name:  "raw newline inside string value",
			input: "{\"a\": \"line one\nline two\"}",
			want:  map[string]any{"a": "line one\nline two"},
		},
		{
			name:  "raw tab inside string value",
			input: "{\"a\": \"col1\tcol2\"}",
			want:  map[string]any{"a": "col1\tcol2"},
		},
		{
			name:  "missing comma between objects",
			input: `{"a": [{"x": 1} {"x": 2}]}`,
			want:  map[string]any{"a": []any{map[string]any{"x": 1.0}, map[string]any{"x": 2.0}}},
		},
		{
			name:  "smart double quotes",
			input: "{“a”: 1}",
			want:  map[string]any{"a": 1.0},
		},
		{
			name:  "unclosed string at end of object",
			input: `{"a": "oops}`,
			want:  map[string]any{"a": "oops"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repaired := repair.RepairSyntax(tt.input)
			var got map[string]any
			if err := json.Unmarshal([]byte(repaired), &got); err != nil {
				t.Fatalf("repaired output does not parse: %v\noutput: %s", err, repaired)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestRepairSyntax_NoOpOnValidJSON(t *testing.T) {
	t.Parallel()

	inputs := []string{
		`{"a": 1, "b": [true, null, "x"]}`,
		`{"nested": {"deep": {"deeper": [1, 2, 3]}}}`,
		`{"tricky": "a string with , and } inside"}`,
		`{"trailing-ish": "value ends with comma, ]"}`,
	}

	for _, input := range inputs {
		repaired := repair.RepairSyntax(input)

		var want, got any
		if err := json.Unmarshal([]byte(input), &want); err != nil {
			t.Fatalf("test input invalid: %v", err)
		}
		if err := json.Unmarshal([]byte(repaired), &got); err != nil {
			t.Fatalf("repair broke valid JSON: %v\ninput: %s\noutput: %s", err, input, repaired)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("repair changed structure of valid JSON\ninput: %s\noutput: %s", input, repaired)
		}
	}
}

func TestRepairSyntax_NeverPanicsOnGarbage(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"not json at all",
		`{{{{`,
		`"""`,
		"\\\\\\",
		"{\"a\": “broken”, [}]",
		"```json",
	}

	for _, input := range inputs {
		// Any return value is acceptable; the contract is no panic.
		_ = repair.RepairSyntax(input)
	}
}
