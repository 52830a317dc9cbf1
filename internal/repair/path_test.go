package repair_test

import (
	"testing"

	"github.com/tickerlens/tickerlens/internal/repair"
)

func TestPath_StringRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path repair.Path
		want string
	}{
		{nil, ""},
		{repair.Path{repair.KeyStep("a")}, "a"},
		{repair.Path{repair.KeyStep("a"), repair.KeyStep("b")}, "a.b"},
		{repair.Path{repair.KeyStep("a"), repair.IndexStep(2), repair.KeyStep("c")}, "a[2].c"},
		{repair.Path{repair.KeyStep("signals"), repair.IndexStep(0), repair.KeyStep("entry_price")}, "signals[0].entry_price"},
	}

	for _, tt := range tests {
		got := tt.path.String()
		if got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
			continue
		}
		back := repair.ParsePath(got)
		if !back.Equal(tt.path) {
			t.Errorf("ParsePath(%q) = %#v, want %#v", got, back, tt.path)
		}
	}
}

func TestPath_Leaf(t *testing.T) {
	t.Parallel()

	p := repair.Path{repair.KeyStep("signals"), repair.IndexStep(1), repair.KeyStep("direction")}
	if got := p.Leaf(); got != "direction" {
		t.Errorf("Leaf() = %q, want direction", got)
	}

	idx := repair.Path{repair.KeyStep("signals"), repair.IndexStep(1)}
	if got := idx.Leaf(); got != "" {
		t.Errorf("Leaf() = %q, want empty for index tail", got)
	}
}

func TestPath_ChildAndAtDoNotAlias(t *testing.T) {
	t.Parallel()

	base := repair.Path{repair.KeyStep("a")}
	left := base.Child("b")
	right := base.At(0)

	if left.String() != "a.b" {
		t.Errorf("left = %q, want a.b", left.String())
	}
	if right.String() != "a[0]" {
		t.Errorf("right = %q, want a[0]", right.String())
	}
	if base.String() != "a" {
		t.Errorf("base mutated: %q", base.String())
	}
}
