package repair

import (
	"fmt"
	"sort"
	"strings"
)

// FieldChange describes one leaf-level difference between two documents.
// Old is nil for added fields and New is nil for removed ones.
type FieldChange struct {
	Path string
	Old  any
	New  any
}

// String renders the change as a repair log line.
func (c FieldChange) String() string {
	switch {
	case c.Old == nil:
		return fmt.Sprintf("%s: added %v", c.Path, c.New)
	case c.New == nil:
		return fmt.Sprintf("%s: removed %v", c.Path, c.Old)
	default:
		return fmt.Sprintf("%s: %v -> %v", c.Path, c.Old, c.New)
	}
}

// flattenDoc maps every scalar leaf in doc to its rendered path.
func flattenDoc(doc map[string]any) map[string]any {
	out := map[string]any{}

	type task struct {
		node any
		path Path
	}
	queue := []task{{node: doc}}
	for head := 0; head < len(queue); head++ {
		t := queue[head]
		switch n := t.node.(type) {
		case map[string]any:
			for k, v := range n {
				p := t.path.Child(k)
				switch v.(type) {
				case map[string]any, []any:
					queue = append(queue, task{v, p})
				default:
					out[p.String()] = v
				}
			}
		case []any:
			for i, v := range n {
				p := t.path.At(i)
				switch v.(type) {
				case map[string]any, []any:
					queue = append(queue, task{v, p})
				default:
					out[p.String()] = v
				}
			}
		}
	}
	return out
}

// diffDocs computes leaf-level changes from before to after, sorted by path.
func diffDocs(before, after map[string]any) []FieldChange {
	fb := flattenDoc(before)
	fa := flattenDoc(after)

	paths := map[string]struct{}{}
	for p := range fb {
		paths[p] = struct{}{}
	}
	for p := range fa {
		paths[p] = struct{}{}
	}

	var changes []FieldChange
	for p := range paths {
		old, hadOld := fb[p]
		cur, hasNew := fa[p]
		switch {
		case !hadOld:
			changes = append(changes, FieldChange{Path: p, New: cur})
		case !hasNew:
			changes = append(changes, FieldChange{Path: p, Old: old})
		case old != cur:
			changes = append(changes, FieldChange{Path: p, Old: old, New: cur})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

// hallucinationWarnings flags changes whose path is not covered by any
// validation error. A change is expected when its path equals an error path
// or descends from one (fixing a container error legitimately rewrites the
// subtree). Warnings are advisory: they go to the repair log for human
// audit, never block the repair.
func hallucinationWarnings(changes []FieldChange, errs []ValidationError) []string {
	errPaths := make([]string, 0, len(errs))
	for _, e := range errs {
		errPaths = append(errPaths, e.Path.String())
	}

	var warnings []string
	for _, c := range changes {
		if pathCovered(c.Path, errPaths) {
			continue
		}
		warnings = append(warnings, fmt.Sprintf("hallucination warning: unflagged field %s was modified (%v -> %v)", c.Path, c.Old, c.New))
	}
	return warnings
}

// pathCovered reports whether path equals or descends from any of roots.
func pathCovered(path string, roots []string) bool {
	for _, r := range roots {
		if r == "" {
			continue
		}
		if path == r {
			return true
		}
		if strings.HasPrefix(path, r+".") || strings.HasPrefix(path, r+"[") {
			return true
		}
	}
	return false
}
