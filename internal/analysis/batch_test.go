package analysis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tickerlens/tickerlens/internal/analysis"
	"github.com/tickerlens/tickerlens/internal/repair"
	"github.com/tickerlens/tickerlens/internal/transcript"
	llm "github.com/tickerlens/tickerlens/pkg/provider/llm"
	"github.com/tickerlens/tickerlens/pkg/provider/llm/mock"
)

// longTranscript spans two 180 s chunks: one segment at 0 s and one at 200 s.
func longTranscript() transcript.Transcript {
	return transcript.Transcript{
		VideoID: "vid",
		Segments: []transcript.Segment{
			{Text: "bitcoin is testing resistance at sixty five thousand", Start: 0, Duration: 10 * time.Second},
			{Text: "ethereum looks weak here", Start: 200 * time.Second, Duration: 10 * time.Second},
		},
	}
}

const chunkOneResponse = `{
	"content_type": "bitcoin_analysis",
	"primary_asset": "BTC",
	"analysis_style": "technical",
	"classification_confidence": 0.8,
	"assets_discussed": ["BTC"],
	"price_levels": [{"price": 65200, "label": "$65,200", "type": "resistance", "confidence": 0.85, "timestamp": 5}],
	"signals": [{"asset": "BTC", "direction": "long", "entry_price": "$65,200", "timeframe": "swing_trade", "confidence": 0.8, "timestamp": 5}],
	"indicators_mentioned": ["RSI"],
	"patterns_identified": [],
	"executive_summary": "First part.",
	"key_topics": ["bitcoin"],
	"market_context": "bullish",
	"full_cleaned_text": "part one",
	"frame_extraction_plan": {
		"suggested_count": 10,
		"key_moments": [{"time": 5, "importance": 0.9, "reason": "btc chart"}],
		"coverage_interval_seconds": 180
	}
}`

// chunkTwoResponse repeats the BTC signal, adds an ETH signal, repeats the
// 65200 level within epsilon, and adds a distinct support level.
const chunkTwoResponse = `{
	"content_type": "market_news",
	"primary_asset": "BTC",
	"analysis_style": "technical",
	"classification_confidence": 0.9,
	"assets_discussed": ["BTC", "ETH"],
	"price_levels": [
		{"price": 65250, "label": "$65,250", "type": "resistance", "confidence": 0.7, "timestamp": 8},
		{"price": 62000, "label": "$62,000", "type": "support", "confidence": 0.8, "timestamp": 12}
	],
	"signals": [
		{"asset": "BTC", "direction": "long", "entry_price": "$65,200", "timeframe": "swing_trade", "confidence": 0.7, "timestamp": 8},
		{"asset": "ETH", "direction": "short", "timeframe": "day_trade", "confidence": 0.7, "timestamp": 30}
	],
	"indicators_mentioned": ["MACD"],
	"patterns_identified": [],
	"executive_summary": "Second part.",
	"key_topics": ["ethereum"],
	"market_context": "mixed",
	"full_cleaned_text": "part two",
	"frame_extraction_plan": {
		"suggested_count": 10,
		"key_moments": [{"time": 10, "importance": 0.7, "reason": "eth chart"}],
		"coverage_interval_seconds": 180
	}
}`

func newBatchProcessor(provider llm.Provider) *analysis.BatchProcessor {
	agent := analysis.NewAgent(provider, repair.NewPipeline())
	// One worker keeps the mock's response sequence aligned with chunk order.
	return analysis.NewBatchProcessor(agent, analysis.WithWorkers(1))
}

func TestBatchProcessor_MergesChunks(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: chunkOneResponse},
			{Content: chunkTwoResponse},
		},
	}
	b := newBatchProcessor(provider)

	intel, stats, err := b.Process(context.Background(), longTranscript())
	if err != nil {
		t.Fatalf("Process: unexpected error: %v", err)
	}
	if stats.Chunks != 2 || stats.Succeeded != 2 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, want 2 chunks all succeeded", stats)
	}

	// Classification follows the most confident chunk.
	if intel.ContentType != analysis.ContentMarketNews {
		t.Errorf("ContentType = %q, want market_news", intel.ContentType)
	}
	if intel.ClassificationConfidence != 0.9 {
		t.Errorf("ClassificationConfidence = %v, want 0.9", intel.ClassificationConfidence)
	}
	// Base classification fields come from the first chunk.
	if intel.MarketContext != analysis.MarketBullish {
		t.Errorf("MarketContext = %q, want bullish", intel.MarketContext)
	}

	// Duplicate BTC signal dropped, ETH signal kept with absolute timestamp.
	if len(intel.Signals) != 2 {
		t.Fatalf("got %d signals, want 2: %+v", len(intel.Signals), intel.Signals)
	}
	var eth *analysis.Signal
	for i := range intel.Signals {
		if intel.Signals[i].Asset == "ETH" {
			eth = &intel.Signals[i]
		}
	}
	if eth == nil {
		t.Fatal("merged signals missing ETH")
	}
	if eth.Timestamp != 230 {
		t.Errorf("ETH signal timestamp = %d, want 230 (30 + chunk offset 200)", eth.Timestamp)
	}

	// 65250 is within 100 of 65200 and dropped; 62000 survives.
	if len(intel.PriceLevels) != 2 {
		t.Fatalf("got %d levels, want 2: %+v", len(intel.PriceLevels), intel.PriceLevels)
	}

	if got, want := intel.ExecutiveSummary, "First part. Second part."; got != want {
		t.Errorf("ExecutiveSummary = %q, want %q", got, want)
	}
	if got, want := intel.FullCleanedText, "part one part two"; got != want {
		t.Errorf("FullCleanedText = %q, want %q", got, want)
	}

	wantAssets := []string{"BTC", "ETH"}
	if len(intel.AssetsDiscussed) != 2 || intel.AssetsDiscussed[0] != wantAssets[0] || intel.AssetsDiscussed[1] != wantAssets[1] {
		t.Errorf("AssetsDiscussed = %v, want %v", intel.AssetsDiscussed, wantAssets)
	}

	// Frame moments carry absolute times and stay time-ordered.
	moments := intel.FramePlan.KeyMoments
	if len(moments) != 2 {
		t.Fatalf("got %d moments, want 2: %+v", len(moments), moments)
	}
	if moments[0].Time != 5 || moments[1].Time != 210 {
		t.Errorf("moment times = [%d, %d], want [5, 210]", moments[0].Time, moments[1].Time)
	}
	if intel.FramePlan.SuggestedCount != 10 {
		t.Errorf("SuggestedCount = %d, want 10", intel.FramePlan.SuggestedCount)
	}
	if intel.FramePlan.CoverageIntervalSeconds != 120 {
		t.Errorf("CoverageIntervalSeconds = %d, want 120", intel.FramePlan.CoverageIntervalSeconds)
	}
}

func TestBatchProcessor_FailedChunkIsIsolated(t *testing.T) {
	t.Parallel()

	// First chunk is unrecoverable (signal without asset or confidence),
	// second chunk is fine. The batch must keep the second chunk's data
	// with absolute timestamps.
	broken := `{
	"content_type": "general",
	"analysis_style": "mixed",
	"classification_confidence": 0.5,
	"signals": [{"direction": "long"}],
	"executive_summary": "s",
	"market_context": "neutral",
	"frame_extraction_plan": {"suggested_count": 10, "key_moments": [], "coverage_interval_seconds": 180}
}`

	provider := &mock.Provider{
		CompleteResponses: []*llm.CompletionResponse{
			{Content: broken},
			{Content: chunkTwoResponse},
		},
	}
	b := newBatchProcessor(provider)

	intel, stats, err := b.Process(context.Background(), longTranscript())
	if err != nil {
		t.Fatalf("Process: unexpected error: %v", err)
	}
	if stats.Succeeded != 1 || stats.Failed != 1 {
		t.Fatalf("stats = %+v, want 1 succeeded 1 failed", stats)
	}

	if len(intel.Signals) != 2 {
		t.Fatalf("got %d signals, want 2 from the surviving chunk", len(intel.Signals))
	}
	// The surviving chunk is the second one; its timestamps get the 200 s
	// offset even without a merge partner.
	for _, sig := range intel.Signals {
		if sig.Asset == "ETH" && sig.Timestamp != 230 {
			t.Errorf("ETH timestamp = %d, want 230", sig.Timestamp)
		}
	}
}

func TestBatchProcessor_AllChunksFailed(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{CompleteErr: errors.New("provider down")}
	b := newBatchProcessor(provider)

	tr := longTranscript()
	intel, stats, err := b.Process(context.Background(), tr)
	if err != nil {
		t.Fatalf("Process: unexpected error: %v", err)
	}
	if stats.Failed != 2 || stats.Succeeded != 0 {
		t.Fatalf("stats = %+v, want all failed", stats)
	}

	// Empty fallback: neutral classification, raw text preserved.
	if intel.ContentType != analysis.ContentGeneral {
		t.Errorf("ContentType = %q, want general", intel.ContentType)
	}
	if intel.FullCleanedText != tr.FullText() {
		t.Errorf("FullCleanedText = %q, want raw transcript text", intel.FullCleanedText)
	}
	if len(intel.FramePlan.KeyMoments) != 10 {
		t.Errorf("fallback plan has %d moments, want 10", len(intel.FramePlan.KeyMoments))
	}
}

func TestBatchProcessor_EmptyTranscript(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{}
	b := newBatchProcessor(provider)

	intel, stats, err := b.Process(context.Background(), transcript.Transcript{VideoID: "vid"})
	if err != nil {
		t.Fatalf("Process: unexpected error: %v", err)
	}
	if stats.Chunks != 0 {
		t.Errorf("stats.Chunks = %d, want 0", stats.Chunks)
	}
	if intel.ContentType != analysis.ContentGeneral {
		t.Errorf("ContentType = %q, want general fallback", intel.ContentType)
	}
	if len(provider.CompleteCalls) != 0 {
		t.Errorf("provider called %d times for empty transcript, want 0", len(provider.CompleteCalls))
	}
}

func TestBatchProcessor_RepairedCount(t *testing.T) {
	t.Parallel()

	// A chunk whose enum value needs a phase-2 fuzzy fix counts as repaired.
	needsFix := `{
	"content_type": "bitcoin_analysis",
	"analysis_style": "technical",
	"classification_confidence": 0.8,
	"signals": [{"asset": "BTC", "direction": "lnog", "timeframe": "swing_trade", "confidence": 0.8}],
	"executive_summary": "s",
	"market_context": "bullish",
	"frame_extraction_plan": {"suggested_count": 10, "key_moments": [], "coverage_interval_seconds": 180}
}`

	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: needsFix},
	}
	agent := analysis.NewAgent(provider, repair.NewPipeline())
	b := analysis.NewBatchProcessor(agent, analysis.WithWorkers(1))

	tr := transcript.Transcript{
		VideoID:  "vid",
		Segments: []transcript.Segment{{Text: "btc", Start: 0, Duration: 5 * time.Second}},
	}
	intel, stats, err := b.Process(context.Background(), tr)
	if err != nil {
		t.Fatalf("Process: unexpected error: %v", err)
	}
	if stats.Succeeded != 1 || stats.Repaired != 1 {
		t.Fatalf("stats = %+v, want 1 succeeded 1 repaired", stats)
	}
	if intel.Signals[0].Direction != analysis.DirectionLong {
		t.Errorf("Direction = %q, want long after fuzzy fix", intel.Signals[0].Direction)
	}
}
