// Package repair turns unreliable free-form LLM output into documents that
// conform to a target schema.
//
// The package applies three escalating strategies per response:
//
//  1. Programmatic normalization — JSON syntax repair, enum synonym
//     canonicalization, and type coercion ([RepairSyntax], [Normalize]).
//  2. Programmatic fixes — fuzzy-matching invalid enum values against the
//     legal set and synthesizing defaults for missing required fields
//     ([FixErrors]).
//  3. LLM-mediated repair — a single constrained low-temperature completion
//     that corrects only the fields named in the validation errors
//     ([LLMRepairer]).
//
// [Pipeline] sequences the three phases per response and [Pipeline.ProcessBatch]
// applies the sequence across transcript chunks with per-chunk failure
// isolation, so one unrecoverable chunk never discards data extracted from
// the others.
package repair

import "fmt"

// ErrorKind classifies a validation failure so the fixer can decide which
// phase handles it.
type ErrorKind string

const (
	// KindWrongType indicates a scalar of the wrong type (string where a
	// number is required, etc.).
	KindWrongType ErrorKind = "wrong_type"

	// KindNotInEnum indicates a string outside the field's legal enum set.
	KindNotInEnum ErrorKind = "not_in_enum"

	// KindMissingRequired indicates an absent or null required field.
	KindMissingRequired ErrorKind = "missing_required"

	// KindOutOfRange indicates a numeric value outside its allowed range.
	KindOutOfRange ErrorKind = "out_of_range"

	// KindWrongShape indicates the wrong container type, e.g. a mapping
	// where a sequence is required. Never fixed programmatically.
	KindWrongShape ErrorKind = "wrong_shape"
)

// ValidationError describes one field-level schema violation. Values are
// produced fresh on every validation attempt and never mutated.
type ValidationError struct {
	// Path locates the offending field.
	Path Path

	// Kind classifies the violation.
	Kind ErrorKind

	// Message is a human-readable description.
	Message string

	// Value is the offending value, when available.
	Value any
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Path, e.Kind, e.Message)
}

// Schema is the validation capability the pipeline drives. Implementations
// wrap a concrete document shape (see internal/analysis for the transcript
// intelligence schema) and must expose enough introspection for phases 2
// and 3 to act on the errors they report.
//
// Implementations must be safe for concurrent use; the pipeline shares one
// Schema across concurrently repaired chunks.
type Schema interface {
	// Name identifies the schema in logs and prompts.
	Name() string

	// Validate checks doc against the schema and returns all field-level
	// violations found, or nil when doc conforms.
	Validate(doc map[string]any) []ValidationError

	// EnumValues returns the legal values for the enum field at path, or nil
	// when the field is not enum-typed.
	EnumValues(path Path) []string

	// RequiredFields returns the paths of all required fields. Paths into
	// sequence element types use index 0 as a placeholder.
	RequiredFields() []Path

	// DefaultFor returns a safe, context-free default for the field at path.
	// The second return is false when no such default exists, in which case
	// the missing field escalates to LLM repair.
	DefaultFor(path Path) (any, bool)
}
