package repair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Phase identifies a stage of the repair state machine. Outcome.Phase
// records the stage that produced the final document.
type Phase string

const (
	// PhaseParse covers syntax repair, parsing, and partial extraction.
	PhaseParse Phase = "parse"

	// PhaseNormalize is programmatic normalization (phase 1).
	PhaseNormalize Phase = "normalize"

	// PhaseFix is programmatic error fixing (phase 2).
	PhaseFix Phase = "programmatic_fix"

	// PhaseLLMRepair is LLM-mediated repair (phase 3).
	PhaseLLMRepair Phase = "llm_repair"

	// PhaseFailed marks an unrecoverable response. The Outcome still
	// carries the best-effort document and the full log.
	PhaseFailed Phase = "failed"
)

// Outcome is the result of one pipeline run. Doc is always non-nil: on
// failure it holds the last working copy so callers can explicitly decide
// to use partial data rather than receiving nothing.
type Outcome struct {
	// Doc is the final document, conforming to the schema when Valid.
	Doc map[string]any

	// Valid reports whether Doc passed validation.
	Valid bool

	// Phase is the stage that produced Doc: PhaseNormalize, PhaseFix, or
	// PhaseLLMRepair when Valid, PhaseFailed otherwise.
	Phase Phase

	// SyntaxRepairs logs what the syntax-repair and parse stage did.
	SyntaxRepairs []string

	// Normalizations logs every phase-1 change.
	Normalizations []string

	// RepairLog logs phase-2 fixes, the phase-3 diff, and hallucination
	// warnings, in order.
	RepairLog []string

	// Errors is the last validation error list; nil when Valid.
	Errors []ValidationError
}

// Observer receives per-phase outcomes for metrics. Implementations must be
// safe for concurrent use.
type Observer interface {
	// ObservePhase records that a phase ran and whether the document
	// validated afterwards.
	ObservePhase(ctx context.Context, phase Phase, valid bool)
}

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithRules overrides the normalization rule table. Default: [DefaultRules].
func WithRules(rules *Rules) Option {
	return func(p *Pipeline) { p.rules = rules }
}

// WithLLMRepairer enables phase 3 with the given repairer. Without one the
// pipeline fails responses that phases 1 and 2 cannot fix.
func WithLLMRepairer(r *LLMRepairer) Option {
	return func(p *Pipeline) { p.repairer = r }
}

// WithSimilarityThreshold sets the minimum fuzzy-match score for phase-2
// enum fixes. Default: [DefaultSimilarityThreshold].
func WithSimilarityThreshold(t float64) Option {
	return func(p *Pipeline) { p.threshold = t }
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithObserver registers a metrics observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// Pipeline sequences the three repair phases for one LLM response at a
// time. A Pipeline holds only read-only state (rules, thresholds, provider
// handles) and is safe for concurrent use across chunks; each Process call
// owns its working document and log exclusively.
type Pipeline struct {
	rules     *Rules
	repairer  *LLMRepairer
	threshold float64
	log       *slog.Logger
	observer  Observer
}

// NewPipeline returns a Pipeline with the default trading rules and fuzzy
// threshold. Apply options to override.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		rules:     DefaultRules(),
		threshold: DefaultSimilarityThreshold,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs the full state machine over one raw LLM response:
//
//	SYNTAX_REPAIR → PARSE → NORMALIZE → VALIDATE →
//	  FIX → VALIDATE → LLM_REPAIR → VALIDATE → DONE | FAILED
//
// Parse failure routes through [ExtractPartial] rather than failing the
// run. Each phase runs at most once; there is no retry loop. Process never
// returns an error: unrecoverable responses land in a PhaseFailed Outcome
// carrying the best-effort document, the accumulated log, and the last
// validation errors.
func (p *Pipeline) Process(ctx context.Context, raw string, schema Schema, sourceContext string) Outcome {
	out := Outcome{}

	doc, syntaxLog := p.parse(raw)
	out.SyntaxRepairs = syntaxLog

	// Phase 1: normalization.
	doc, out.Normalizations = Normalize(doc, p.rules)
	errs := schema.Validate(doc)
	p.observePhase(ctx, PhaseNormalize, len(errs) == 0)
	if len(errs) == 0 {
		out.Doc, out.Valid, out.Phase = doc, true, PhaseNormalize
		return out
	}

	// Phase 2: programmatic fixes.
	doc, fixLog := FixErrors(doc, errs, schema, p.threshold)
	out.RepairLog = append(out.RepairLog, fixLog...)
	errs = schema.Validate(doc)
	p.observePhase(ctx, PhaseFix, len(errs) == 0)
	if len(errs) == 0 {
		out.Doc, out.Valid, out.Phase = doc, true, PhaseFix
		return out
	}

	// Phase 3: LLM repair.
	if p.repairer == nil {
		out.Doc, out.Phase, out.Errors = doc, PhaseFailed, errs
		out.RepairLog = append(out.RepairLog, "llm repair disabled, response unrecoverable")
		return out
	}

	repaired, repairLog, err := p.repairer.Repair(ctx, doc, errs, schema, sourceContext)
	out.RepairLog = append(out.RepairLog, repairLog...)
	if err != nil {
		p.observePhase(ctx, PhaseLLMRepair, false)
		out.Doc, out.Phase = doc, PhaseFailed
		out.Errors = errs
		var rerr *RepairError
		if errors.As(err, &rerr) && len(rerr.Errors) > 0 {
			out.Errors = rerr.Errors
		}
		out.RepairLog = append(out.RepairLog, fmt.Sprintf("llm repair failed: %v", err))
		p.log.Warn("repair pipeline exhausted", "schema", schema.Name(), "errors", len(out.Errors))
		return out
	}

	p.observePhase(ctx, PhaseLLMRepair, true)
	out.Doc, out.Valid, out.Phase = repaired, true, PhaseLLMRepair
	return out
}

// parse applies syntax repair and parsing, falling back to partial
// extraction. The returned document is non-nil even for all-garbage input.
func (p *Pipeline) parse(raw string) (map[string]any, []string) {
	var log []string

	block := extractJSONBlock(raw)
	var doc map[string]any
	if err := json.Unmarshal([]byte(block), &doc); err == nil && doc != nil {
		return doc, nil
	} else if err != nil {
		log = append(log, fmt.Sprintf("original JSON invalid: %v", err))
	}

	repaired := RepairSyntax(raw)
	if err := json.Unmarshal([]byte(repaired), &doc); err == nil && doc != nil {
		log = append(log, "syntax repair produced parseable JSON")
		return doc, log
	}

	partial := ExtractPartial(repaired)
	log = append(log, fmt.Sprintf("partial extraction recovered %d fields", len(partial)))
	return partial, log
}

func (p *Pipeline) observePhase(ctx context.Context, phase Phase, valid bool) {
	if p.observer != nil {
		p.observer.ObservePhase(ctx, phase, valid)
	}
}
