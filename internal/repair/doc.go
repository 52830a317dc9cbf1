package repair

// getAtPath returns the value at path inside doc, descending through maps
// and sequences. The second return is false when any step is missing or of
// the wrong container type.
func getAtPath(doc map[string]any, p Path) (any, bool) {
	var cur any = doc
	for _, step := range p {
		if step.IsIndex {
			seq, ok := cur.([]any)
			if !ok || step.Index < 0 || step.Index >= len(seq) {
				return nil, false
			}
			cur = seq[step.Index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[step.Key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setAtPath writes value at path inside doc. The parent containers must
// already exist; setAtPath reports whether the write landed.
func setAtPath(doc map[string]any, p Path, value any) bool {
	if len(p) == 0 {
		return false
	}
	parent, ok := getAtPath(doc, p[:len(p)-1])
	if !ok {
		return false
	}
	last := p[len(p)-1]
	if last.IsIndex {
		seq, ok := parent.([]any)
		if !ok || last.Index < 0 || last.Index >= len(seq) {
			return false
		}
		seq[last.Index] = value
		return true
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return false
	}
	m[last.Key] = value
	return true
}

// deepCopyDoc copies doc so callers can mutate the result without touching
// the original. Scalars are shared (they are immutable values).
func deepCopyDoc(doc map[string]any) map[string]any {
	if doc == nil {
		return map[string]any{}
	}
	out := shallowCopyMap(doc)
	queue := []any{any(out)}
	for head := 0; head < len(queue); head++ {
		switch n := queue[head].(type) {
		case map[string]any:
			for k, v := range n {
				switch c := v.(type) {
				case map[string]any:
					cp := shallowCopyMap(c)
					n[k] = cp
					queue = append(queue, cp)
				case []any:
					cp := shallowCopySlice(c)
					n[k] = cp
					queue = append(queue, cp)
				}
			}
		case []any:
			for i, v := range n {
				switch c := v.(type) {
				case map[string]any:
					cp := shallowCopyMap(c)
					n[i] = cp
					queue = append(queue, cp)
				case []any:
					cp := shallowCopySlice(c)
					n[i] = cp
					queue = append(queue, cp)
				}
			}
		}
	}
	return out
}
