package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/tickerlens/tickerlens/internal/repair"
	"github.com/tickerlens/tickerlens/internal/transcript"
)

const (
	// levelDedupeEpsilon is the price distance below which two levels are
	// considered the same level mentioned twice.
	levelDedupeEpsilon = 100.0

	// mergeCoverageInterval is the regular frame coverage interval applied
	// to merged plans.
	mergeCoverageInterval = 120

	maxMergedTopics    = 15
	maxMergedSummaries = 3
)

// BatchOption is a functional option for configuring a [BatchProcessor].
type BatchOption func(*BatchProcessor)

// WithChunkDuration sets the target chunk length. Default:
// [DefaultChunkDuration].
func WithChunkDuration(d time.Duration) BatchOption {
	return func(b *BatchProcessor) { b.chunkDuration = d }
}

// WithWorkers sets the number of chunks analyzed concurrently. Default:
// runtime.NumCPU(), minimum 1.
func WithWorkers(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n < 1 {
			n = 1
		}
		b.workers = n
	}
}

// WithBatchLogger sets the structured logger. Default: slog.Default().
func WithBatchLogger(log *slog.Logger) BatchOption {
	return func(b *BatchProcessor) { b.log = log }
}

// BatchStats summarizes how a batch run went.
type BatchStats struct {
	// Chunks is the number of chunks the transcript was split into.
	Chunks int

	// Succeeded counts chunks that produced a valid document.
	Succeeded int

	// Repaired counts succeeded chunks that needed phase 2 or 3 repair.
	Repaired int

	// Failed counts unrecoverable chunks.
	Failed int
}

// BatchProcessor analyzes long transcripts chunk by chunk. Chunks run
// concurrently on a bounded worker pool; a failed chunk is logged and
// skipped, never aborting the batch. When every chunk fails the processor
// returns the empty fallback result rather than an error, so callers always
// receive a usable document.
type BatchProcessor struct {
	agent         *Agent
	chunkDuration time.Duration
	workers       int
	log           *slog.Logger
}

// NewBatchProcessor constructs a [BatchProcessor] around the given agent.
func NewBatchProcessor(agent *Agent, opts ...BatchOption) *BatchProcessor {
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	b := &BatchProcessor{
		agent:         agent,
		chunkDuration: DefaultChunkDuration,
		workers:       workers,
		log:           slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// chunkResult pairs a chunk with its analysis outcome.
type chunkResult struct {
	chunk   Chunk
	intel   Intelligence
	outcome repair.Outcome
	err     error
}

// Process splits the transcript, analyzes all chunks, and merges the valid
// results. The returned stats record succeeded, repaired, and failed chunk
// counts.
func (b *BatchProcessor) Process(ctx context.Context, t transcript.Transcript) (Intelligence, BatchStats, error) {
	chunks := SplitChunks(t, b.chunkDuration)
	if len(chunks) == 0 {
		return emptyIntelligence(t), BatchStats{}, nil
	}

	pool, err := ants.NewPool(b.workers)
	if err != nil {
		return Intelligence{}, BatchStats{}, fmt.Errorf("analysis: worker pool: %w", err)
	}
	defer pool.Release()

	results := make([]chunkResult, len(chunks))
	var wg sync.WaitGroup
	for i, c := range chunks {
		i, c := i, c
		wg.Add(1)
		task := func() {
			defer wg.Done()
			intel, outcome, err := b.agent.Analyze(ctx, c.Transcript)
			results[i] = chunkResult{chunk: c, intel: intel, outcome: outcome, err: err}
		}
		if err := pool.Submit(task); err != nil {
			results[i] = chunkResult{chunk: c, err: err}
			wg.Done()
		}
	}
	wg.Wait()

	stats := BatchStats{Chunks: len(chunks)}
	var valid []chunkResult
	for _, r := range results {
		if r.err != nil {
			stats.Failed++
			b.log.Warn("chunk analysis failed",
				"video_id", t.VideoID, "chunk", r.chunk.Index, "error", r.err)
			continue
		}
		stats.Succeeded++
		if r.outcome.Phase != repair.PhaseNormalize {
			stats.Repaired++
		}
		valid = append(valid, r)
	}

	b.log.Info("batch analysis complete",
		"video_id", t.VideoID,
		"chunks", stats.Chunks,
		"succeeded", stats.Succeeded,
		"repaired", stats.Repaired,
		"failed", stats.Failed)

	if len(valid) == 0 {
		b.log.Warn("all chunks failed, returning empty result", "video_id", t.VideoID)
		return emptyIntelligence(t), stats, nil
	}

	return mergeResults(valid, t), stats, nil
}

// mergeResults combines per-chunk intelligence into one document, restoring
// absolute timestamps and de-duplicating data that spans chunk boundaries.
func mergeResults(results []chunkResult, original transcript.Transcript) Intelligence {
	for i := range results {
		offsetIntelligence(&results[i].intel, results[i].chunk.Start)
	}
	if len(results) == 1 {
		return results[0].intel
	}

	base := results[0].intel
	merged := Intelligence{
		ContentType:              base.ContentType,
		PrimaryAsset:             base.PrimaryAsset,
		AnalysisStyle:            base.AnalysisStyle,
		ClassificationConfidence: base.ClassificationConfidence,
		MarketContext:            base.MarketContext,
	}

	assets := map[string]struct{}{}
	indicators := map[string]struct{}{}
	patterns := map[string]struct{}{}
	topics := map[string]struct{}{}
	var moments []FrameMoment
	var summaries []string
	var texts []string

	for _, r := range results {
		intel := r.intel

		// The chunk with the most confident classification wins.
		if intel.ClassificationConfidence > merged.ClassificationConfidence {
			merged.ContentType = intel.ContentType
			merged.ClassificationConfidence = intel.ClassificationConfidence
		}

		for _, sig := range intel.Signals {
			if !signalExists(sig, merged.Signals) {
				merged.Signals = append(merged.Signals, sig)
			}
		}
		for _, lvl := range intel.PriceLevels {
			if !levelExists(lvl, merged.PriceLevels) {
				merged.PriceLevels = append(merged.PriceLevels, lvl)
			}
		}

		for _, a := range intel.AssetsDiscussed {
			assets[a] = struct{}{}
		}
		for _, ind := range intel.IndicatorsMentioned {
			indicators[ind] = struct{}{}
		}
		for _, p := range intel.PatternsIdentified {
			patterns[p] = struct{}{}
		}
		for _, topic := range intel.KeyTopics {
			topics[topic] = struct{}{}
		}

		moments = append(moments, intel.FramePlan.KeyMoments...)
		if intel.ExecutiveSummary != "" {
			summaries = append(summaries, intel.ExecutiveSummary)
		}
		if intel.FullCleanedText != "" {
			texts = append(texts, intel.FullCleanedText)
		}
	}

	merged.AssetsDiscussed = sortedSet(assets)
	merged.IndicatorsMentioned = sortedSet(indicators)
	merged.PatternsIdentified = sortedSet(patterns)

	merged.KeyTopics = sortedSet(topics)
	if len(merged.KeyTopics) > maxMergedTopics {
		merged.KeyTopics = merged.KeyTopics[:maxMergedTopics]
	}

	merged.ExecutiveSummary = mergeSummaries(summaries)
	merged.FullCleanedText = strings.Join(texts, " ")
	merged.FramePlan = mergeFramePlan(moments, original.Duration())

	return merged
}

// offsetIntelligence shifts all chunk-relative timestamps by the chunk's
// offset within the full video.
func offsetIntelligence(intel *Intelligence, start time.Duration) {
	offset := int(start / time.Second)
	if offset == 0 {
		return
	}
	for i := range intel.Signals {
		if intel.Signals[i].Timestamp != 0 {
			intel.Signals[i].Timestamp += offset
		}
	}
	for i := range intel.PriceLevels {
		if intel.PriceLevels[i].Timestamp != 0 {
			intel.PriceLevels[i].Timestamp += offset
		}
	}
	for i := range intel.FramePlan.KeyMoments {
		intel.FramePlan.KeyMoments[i].Time += offset
	}
}

// signalExists reports whether an equivalent signal is already present.
// Equality is asset + direction + entry price.
func signalExists(sig Signal, existing []Signal) bool {
	for _, e := range existing {
		if e.Asset == sig.Asset && e.Direction == sig.Direction && e.EntryPrice == sig.EntryPrice {
			return true
		}
	}
	return false
}

// levelExists reports whether a level within levelDedupeEpsilon of the price
// is already present.
func levelExists(lvl Level, existing []Level) bool {
	for _, e := range existing {
		d := e.Price - lvl.Price
		if d < 0 {
			d = -d
		}
		if d < levelDedupeEpsilon {
			return true
		}
	}
	return false
}

// mergeFramePlan builds a frame plan from the pooled moments: the target
// count scales with video length (one frame per minute, clamped to
// [10, 20]), the most important moments are kept with even distribution
// when over budget, and the result is ordered by time.
func mergeFramePlan(moments []FrameMoment, duration time.Duration) FramePlan {
	suggested := int(duration.Minutes())
	if suggested < 10 {
		suggested = 10
	}
	if suggested > 20 {
		suggested = 20
	}

	if len(moments) > suggested {
		sort.SliceStable(moments, func(i, j int) bool {
			return moments[i].Importance > moments[j].Importance
		})
		step := float64(len(moments)) / float64(suggested)
		kept := make([]FrameMoment, 0, suggested)
		for i := 0; i < suggested; i++ {
			kept = append(kept, moments[int(float64(i)*step)])
		}
		moments = kept
	}
	sort.SliceStable(moments, func(i, j int) bool {
		return moments[i].Time < moments[j].Time
	})

	return FramePlan{
		SuggestedCount:          suggested,
		KeyMoments:              moments,
		CoverageIntervalSeconds: mergeCoverageInterval,
	}
}

// mergeSummaries joins the first few chunk summaries into one.
func mergeSummaries(summaries []string) string {
	if len(summaries) <= maxMergedSummaries {
		return strings.Join(summaries, " ")
	}
	joined := strings.Join(summaries[:maxMergedSummaries], " ")
	return fmt.Sprintf("%s ... (analysis continues across %d segments)", joined, len(summaries))
}

// sortedSet returns the set's members in sorted order. Empty sets yield an
// empty, non-nil slice so merged documents always carry the list fields.
func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// emptyIntelligence is the fallback document when nothing could be
// extracted: neutral classification, the raw transcript text as summary,
// and a regular-coverage frame plan.
func emptyIntelligence(t transcript.Transcript) Intelligence {
	text := t.FullText()
	summary := text
	if len(summary) > 500 {
		summary = summary[:500] + "..."
	}

	moments := make([]FrameMoment, 0, 10)
	for i := 0; i < 10; i++ {
		moments = append(moments, FrameMoment{
			Time:       i * 60,
			Importance: 0.5,
			Reason:     "regular coverage",
		})
	}

	return Intelligence{
		ContentType:              ContentGeneral,
		AnalysisStyle:            StyleMixed,
		ClassificationConfidence: 0.5,
		MarketContext:            MarketNeutral,
		AssetsDiscussed:          []string{},
		PriceLevels:              []Level{},
		Signals:                  []Signal{},
		IndicatorsMentioned:      []string{},
		PatternsIdentified:       []string{},
		KeyTopics:                []string{},
		ExecutiveSummary:         summary,
		FullCleanedText:          text,
		FramePlan: FramePlan{
			SuggestedCount:          10,
			KeyMoments:              moments,
			CoverageIntervalSeconds: 60,
		},
	}
}
