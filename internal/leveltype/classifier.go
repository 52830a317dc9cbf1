// Package leveltype classifies free-form price level descriptions into
// canonical level types.
//
// LLMs label price levels with whatever wording the video used ("demand
// zone", "take profit area", "key floor"). The [Classifier] resolves those
// to the canonical set in [ValidTypes] through an escalating strategy:
// exact match, learned pattern lookup, context keyword inference, and an
// adaptive default. Inference outcomes are recorded in a SQLite database so
// the classifier improves as corrections come in ([Classifier.Correct]).
package leveltype

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
	_ "modernc.org/sqlite" // SQLite driver
)

// Canonical level types.
const (
	TypeSupport    = "support"
	TypeResistance = "resistance"
	TypeEntry      = "entry"
	TypeTarget     = "target"
	TypeStopLoss   = "stop_loss"
	TypeOther      = "other"
)

// ValidTypes is the canonical set of price level types.
var ValidTypes = []string{TypeSupport, TypeResistance, TypeEntry, TypeTarget, TypeStopLoss, TypeOther}

// Method identifies which strategy produced a classification.
type Method string

const (
	// MethodExact means the input already was a canonical type.
	MethodExact Method = "exact"

	// MethodPattern means a learned pattern from earlier runs matched.
	MethodPattern Method = "pattern_match"

	// MethodContext means the type was inferred from context keywords.
	MethodContext Method = "context_inference"

	// MethodDefault means no confident match existed and the adaptive
	// default was used.
	MethodDefault Method = "default"
)

// Confidence thresholds for the adaptive strategies.
const (
	highConfidence = 0.85
	lowConfidence  = 0.40

	defaultConfidence = 0.3
)

// contextKeywords scores level types by vocabulary found near the level.
var contextKeywords = map[string][]string{
	TypeSupport:    {"support", "supporting", "bouncing", "hold", "floor", "bottom", "demand zone"},
	TypeResistance: {"resistance", "resisting", "ceiling", "top", "supply zone", "rejection"},
	TypeEntry:      {"entry", "enter", "buy", "long", "get in", "position", "open position"},
	TypeTarget:     {"target", "take profit", "tp", "profit", "profit taking", "exit", "close position"},
	TypeStopLoss:   {"stop", "stop loss", "sl", "risk", "cut loss", "protect", "safety"},
}

var (
	entryPhraseRe  = regexp.MustCompile(`\b(buy|long|enter)\s+(at|around|near)\s+\$`)
	targetPhraseRe = regexp.MustCompile(`\b(sell|short|take\s+profit)\s+(at|around)\s+\$`)
	stopPhraseRe   = regexp.MustCompile(`\bstop\s+(loss|at)\s+(around)?\s*\$`)
)

// Result describes one classification.
type Result struct {
	// OriginalType is the input as given.
	OriginalType string

	// NormalizedType is the canonical type.
	NormalizedType string

	// Confidence scores the classification in [0, 1].
	Confidence float64

	// Method identifies the strategy that produced the result.
	Method Method

	// Reasoning explains non-obvious classifications.
	Reasoning string
}

// Option is a functional option for configuring a [Classifier].
type Option func(*Classifier)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Classifier) { c.log = log }
}

// Classifier is the adaptive price level classifier. It is safe for
// concurrent use; SQLite access is serialized through a single connection.
type Classifier struct {
	db  *sql.DB
	log *slog.Logger

	mu       sync.RWMutex
	patterns map[string]learnedPattern
}

type learnedPattern struct {
	normalized string
	confidence float64
}

// New opens (or creates) the learning database at dbPath and loads the
// learned patterns.
func New(dbPath string, opts ...Option) (*Classifier, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("leveltype: mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("leveltype: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	c := &Classifier{
		db:  db,
		log: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}

	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("leveltype: init schema: %w", err)
	}
	if err := c.loadPatterns(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("leveltype: load patterns: %w", err)
	}
	return c, nil
}

// Close releases the database handle.
func (c *Classifier) Close() error {
	return c.db.Close()
}

// Normalize classifies levelType. levelContext is the discussion text
// around the level, used for keyword inference; videoID tags the history
// entry and may be empty. Classification never fails on unknown input; the
// adaptive default is the worst case. The returned error covers database
// problems only.
func (c *Classifier) Normalize(ctx context.Context, levelType, levelContext, videoID string) (Result, error) {
	original := strings.ToLower(strings.TrimSpace(levelType))

	for _, t := range ValidTypes {
		if original == t {
			return Result{
				OriginalType:   levelType,
				NormalizedType: t,
				Confidence:     1.0,
				Method:         MethodExact,
			}, nil
		}
	}

	c.mu.RLock()
	learned, ok := c.patterns[original]
	c.mu.RUnlock()
	if ok {
		return Result{
			OriginalType:   levelType,
			NormalizedType: learned.normalized,
			Confidence:     learned.confidence,
			Method:         MethodPattern,
		}, nil
	}

	if levelContext != "" {
		if inferred, conf := inferFromContext(original, levelContext); inferred != "" && conf >= lowConfidence {
			res := Result{
				OriginalType:   levelType,
				NormalizedType: inferred,
				Confidence:     conf,
				Method:         MethodContext,
				Reasoning:      "inferred from context keywords",
			}
			if err := c.record(ctx, original, res, levelContext, videoID); err != nil {
				return Result{}, err
			}
			return res, nil
		}
	}

	res := Result{
		OriginalType:   levelType,
		NormalizedType: adaptiveDefault(original),
		Confidence:     defaultConfidence,
		Method:         MethodDefault,
		Reasoning:      "no confident match, using adaptive default",
	}
	if err := c.record(ctx, original, res, levelContext, videoID); err != nil {
		return Result{}, err
	}
	return res, nil
}

// inferFromContext scores each canonical type by keyword presence in the
// context, with phrase patterns as strong signals. Ties between
// equally-scored types are broken by string similarity to the original
// label. Returns "" when nothing scores.
func inferFromContext(original, levelContext string) (string, float64) {
	lower := strings.ToLower(levelContext)
	scores := map[string]float64{}

	for levelType, keywords := range contextKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				score := 1.0
				if strings.Contains(original, kw) {
					score *= 1.5
				}
				scores[levelType] += score
			}
		}
	}

	if entryPhraseRe.MatchString(lower) {
		scores[TypeEntry] += 2.0
	}
	if targetPhraseRe.MatchString(lower) {
		scores[TypeTarget] += 2.0
	}
	if stopPhraseRe.MatchString(lower) {
		scores[TypeStopLoss] += 2.0
	}

	if len(scores) == 0 {
		return "", 0
	}

	types := make([]string, 0, len(scores))
	for t := range scores {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if scores[types[i]] != scores[types[j]] {
			return scores[types[i]] > scores[types[j]]
		}
		// Tie: prefer the type whose name is closest to the raw label.
		return matchr.JaroWinkler(original, types[i], false) > matchr.JaroWinkler(original, types[j], false)
	})
	best := types[0]
	bestScore := scores[best]

	total := 0.0
	for _, s := range scores {
		total += s
	}
	confidence := bestScore / total

	// Boost when the winner is unambiguous.
	if len(types) > 1 && bestScore >= 2*scores[types[1]] {
		confidence = min(1.0, confidence*1.2)
	}
	return best, confidence
}

// adaptiveDefault picks a fallback type from tokens inside the raw label.
func adaptiveDefault(original string) string {
	switch {
	case containsAny(original, "buy", "long", "enter"):
		return TypeEntry
	case containsAny(original, "sell", "target", "profit"):
		return TypeTarget
	case containsAny(original, "stop", "loss", "risk"):
		return TypeStopLoss
	case containsAny(original, "support", "floor", "bottom"):
		return TypeSupport
	case containsAny(original, "resistance", "ceiling", "top"):
		return TypeResistance
	}
	return TypeOther
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
