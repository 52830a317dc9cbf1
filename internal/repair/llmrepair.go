package repair

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tickerlens/tickerlens/pkg/provider/llm"
)

const (
	defaultRepairTemperature = 0.1
	defaultRepairMaxTokens   = 4000
	defaultRepairTimeout     = 60 * time.Second

	// maxContextChars caps how much of the source material is embedded in
	// the repair prompt.
	maxContextChars = 2000
)

const repairSystemPrompt = `You are a JSON repair specialist. You fix schema validation errors in JSON documents produced by another model.

Rules:
1. Fix ONLY the fields named in the validation errors.
2. Keep all other values EXACTLY as they are.
3. Do not add new fields or remove existing ones.
4. Do not invent data. When a value is missing, use the provided source context or a neutral default.
5. Ensure types match exactly: integers are bare numbers (5, not "5"), arrays are [], objects are {}.

Respond with ONLY the corrected JSON object. No markdown, no explanation.`

// RepairError is returned when LLM repair could not produce a conforming
// document. It carries the validation errors from the last attempt so
// callers can decide whether the partial document is still usable.
type RepairError struct {
	// Errors is the last validation error list, nil when the failure was
	// transport- or parse-level.
	Errors []ValidationError

	msg string
}

// Error implements the error interface.
func (e *RepairError) Error() string {
	if len(e.Errors) == 0 {
		return "repair: " + e.msg
	}
	return fmt.Sprintf("repair: %s (%d validation errors remain)", e.msg, len(e.Errors))
}

// RepairerOption is a functional option for configuring an [LLMRepairer].
type RepairerOption func(*LLMRepairer)

// WithTemperature sets the sampling temperature for repair completions.
// Low values keep repairs deterministic. Default: 0.1.
func WithTemperature(temp float64) RepairerOption {
	return func(r *LLMRepairer) { r.temperature = temp }
}

// WithTimeout bounds each repair completion. On expiry the repair fails
// like any other unrecoverable attempt; it never hangs the batch.
// Default: 60s.
func WithTimeout(d time.Duration) RepairerOption {
	return func(r *LLMRepairer) { r.timeout = d }
}

// WithMaxTokens caps the repair completion length. Default: 4000.
func WithMaxTokens(n int) RepairerOption {
	return func(r *LLMRepairer) { r.maxTokens = n }
}

// LLMRepairer is the last-resort repair stage: it sends the invalid
// document, the exact validation errors, and the original source context to
// a language model and validates the corrected output. One completion per
// repair, no multi-turn negotiation, no recursion into further LLM calls.
//
// Safe for concurrent use.
type LLMRepairer struct {
	llm         llm.Provider
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// NewLLMRepairer returns an LLMRepairer backed by the given provider.
func NewLLMRepairer(provider llm.Provider, opts ...RepairerOption) *LLMRepairer {
	r := &LLMRepairer{
		llm:         provider,
		temperature: defaultRepairTemperature,
		maxTokens:   defaultRepairMaxTokens,
		timeout:     defaultRepairTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Repair asks the model to correct doc so it satisfies schema. The response
// re-enters the syntax-repair and parse path and is validated once; output
// that still fails validation is an unrecoverable *RepairError, never
// another LLM call.
//
// The returned log contains the field-level diff of the correction plus a
// hallucination warning for every changed field that was not named in errs.
// Warnings flag likely invention for human review; they do not block.
func (r *LLMRepairer) Repair(
	ctx context.Context,
	doc map[string]any,
	errs []ValidationError,
	schema Schema,
	sourceContext string,
) (map[string]any, []string, error) {
	prompt, err := r.buildPrompt(doc, errs, schema, sourceContext)
	if err != nil {
		return nil, nil, &RepairError{msg: fmt.Sprintf("build prompt: %v", err)}
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	resp, err := r.llm.Complete(callCtx, llm.CompletionRequest{
		SystemPrompt: repairSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
		Temperature:  r.temperature,
		MaxTokens:    r.maxTokens,
	})
	if err != nil {
		return nil, nil, &RepairError{msg: fmt.Sprintf("completion: %v", err)}
	}

	var repaired map[string]any
	if err := json.Unmarshal([]byte(RepairSyntax(resp.Content)), &repaired); err != nil {
		return nil, nil, &RepairError{msg: fmt.Sprintf("parse repair output: %v", err)}
	}

	if vErrs := schema.Validate(repaired); len(vErrs) > 0 {
		return nil, nil, &RepairError{
			Errors: vErrs,
			msg:    "repair output still invalid",
		}
	}

	changes := diffDocs(doc, repaired)
	log := make([]string, 0, len(changes)+len(errs)+2)
	log = append(log, fmt.Sprintf("llm repair: fixed %d validation errors", len(errs)))
	for _, c := range changes {
		log = append(log, "llm repair: "+c.String())
	}
	log = append(log, hallucinationWarnings(changes, errs)...)

	return repaired, log, nil
}

// buildPrompt assembles the constrained repair prompt: the errors, the
// schema constraints, the serialized invalid document, and the truncated
// source material for grounding.
func (r *LLMRepairer) buildPrompt(
	doc map[string]any,
	errs []ValidationError,
	schema Schema,
	sourceContext string,
) (string, error) {
	docJSON, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("=== VALIDATION ERRORS ===\n")
	for i, e := range errs {
		fmt.Fprintf(&b, "%d. Field: %s\n   Error: %s\n   Kind: %s\n   Current Value: %v\n", i+1, e.Path, e.Message, e.Kind, e.Value)
	}

	b.WriteString("\n=== SCHEMA CONSTRAINTS ===\n")
	b.WriteString(schemaHints(schema, errs))

	b.WriteString("\n=== CURRENT (INVALID) DATA ===\n")
	b.Write(docJSON)
	b.WriteByte('\n')

	if sourceContext != "" {
		truncated := sourceContext
		if len(truncated) > maxContextChars {
			truncated = truncated[:maxContextChars] + "..."
		}
		b.WriteString("\n=== SOURCE CONTEXT ===\n")
		b.WriteString(truncated)
		b.WriteByte('\n')
	}

	b.WriteString("\nReturn ONLY the corrected JSON:")
	return b.String(), nil
}

// schemaHints renders the constraints relevant to the errors: enum
// universes for flagged enum fields and the schema's required paths.
func schemaHints(schema Schema, errs []ValidationError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Schema: %s\n", schema.Name())

	seen := map[string]struct{}{}
	for _, e := range errs {
		key := e.Path.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if values := schema.EnumValues(e.Path); len(values) > 0 {
			fmt.Fprintf(&b, "%s: must be one of %v\n", key, values)
		}
	}

	required := schema.RequiredFields()
	if len(required) > 0 {
		names := make([]string, len(required))
		for i, p := range required {
			names[i] = p.String()
		}
		fmt.Fprintf(&b, "Required fields: %s\n", strings.Join(names, ", "))
	}
	return b.String()
}
