package repair

import (
	"strconv"
	"strings"
)

// Step is one element of a field path: either a map key or a sequence index.
// Exactly one of Key/Index is meaningful, selected by IsIndex.
type Step struct {
	// Key is the map key when IsIndex is false.
	Key string

	// Index is the sequence position when IsIndex is true.
	Index int

	// IsIndex reports whether this step descends into a sequence.
	IsIndex bool
}

// KeyStep returns a Step descending into a map by key.
func KeyStep(key string) Step {
	return Step{Key: key}
}

// IndexStep returns a Step descending into a sequence by position.
func IndexStep(i int) Step {
	return Step{Index: i, IsIndex: true}
}

// Path is an ordered sequence of steps locating a field inside a nested
// document, e.g. signals[2].direction.
type Path []Step

// String renders the path in dotted form with bracketed indices,
// e.g. "a.b[2].c". An empty path renders as "".
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if s.IsIndex {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(s.Index))
			b.WriteByte(']')
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.Key)
	}
	return b.String()
}

// Child returns a new path extended by one map key.
func (p Path) Child(key string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, KeyStep(key))
}

// At returns a new path extended by one sequence index.
func (p Path) At(i int) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, IndexStep(i))
}

// Leaf returns the final map key of the path, or "" when the path is empty
// or ends in a sequence index.
func (p Path) Leaf() string {
	if len(p) == 0 {
		return ""
	}
	last := p[len(p)-1]
	if last.IsIndex {
		return ""
	}
	return last.Key
}

// Equal reports whether two paths identify the same field.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// ParsePath parses the dotted rendering produced by Path.String back into a
// Path. Bracketed segments become index steps. Malformed bracket contents
// are kept as literal keys rather than rejected, since paths originating
// from validation libraries may embed unusual key names.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	var p Path
	for _, part := range strings.Split(s, ".") {
		for {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				if part != "" {
					p = append(p, KeyStep(part))
				}
				break
			}
			if open > 0 {
				p = append(p, KeyStep(part[:open]))
			}
			end := strings.IndexByte(part[open:], ']')
			if end < 0 {
				p = append(p, KeyStep(part[open:]))
				break
			}
			inner := part[open+1 : open+end]
			if idx, err := strconv.Atoi(inner); err == nil {
				p = append(p, IndexStep(idx))
			} else {
				p = append(p, KeyStep(inner))
			}
			part = part[open+end+1:]
			if part == "" {
				break
			}
		}
	}
	return p
}
