package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tickerlens/tickerlens/internal/repair"
	"github.com/tickerlens/tickerlens/internal/transcript"
	"github.com/tickerlens/tickerlens/pkg/provider/llm"
)

const (
	defaultAnalysisTemperature = 0.2
	defaultAnalysisMaxTokens   = 4096

	// sourceContextChars bounds the transcript excerpt handed to LLM repair
	// for hallucination grounding.
	sourceContextChars = 2000
)

// ErrUnrecoverable indicates the LLM response could not be repaired into a
// valid intelligence document. The repair outcome returned alongside it
// carries the best-effort document and the full repair log.
var ErrUnrecoverable = errors.New("analysis: response unrecoverable")

const analysisSystemPrompt = `You are a trading-video analyst. You receive a timestamped transcript of a cryptocurrency or trading video and extract structured intelligence from it.

Respond with a single JSON object and nothing else. The object has these fields:

- content_type: one of bitcoin_analysis, altcoin_analysis, market_news, trading_education, portfolio_review, general
- primary_asset: main asset symbol discussed, or null
- analysis_style: one of technical, fundamental, news, mixed
- classification_confidence: number between 0 and 1
- assets_discussed: list of asset symbols
- price_levels: list of {price (number), label (original text, e.g. "$65,200"), type (e.g. support, resistance, target), confidence (0-1), timestamp (seconds), context}
- signals: list of {asset, direction (long|short|neutral), entry_price, target_price, stop_loss (price strings or null), timeframe (scalp|day_trade|swing_trade|position|long_term|unspecified), confidence (0-1), timestamp (seconds), rationale}
- indicators_mentioned: list of indicator names
- patterns_identified: list of chart pattern names
- executive_summary: 2-3 sentence summary
- key_topics: list of topics
- market_context: one of bullish, bearish, neutral, mixed
- full_cleaned_text: the transcript cleaned of filler words
- frame_extraction_plan: {suggested_count (integer 5-30), key_moments: list of {time (seconds), importance (0-1), reason}, coverage_interval_seconds (integer)}

Only report prices and signals the speaker actually states. Timestamps refer to the [MM:SS] markers in the transcript.`

// AgentOption is a functional option for configuring an [Agent].
type AgentOption func(*Agent)

// WithAgentLogger sets the structured logger. Default: slog.Default().
func WithAgentLogger(log *slog.Logger) AgentOption {
	return func(a *Agent) { a.log = log }
}

// WithAnalysisTemperature sets the sampling temperature for analysis
// completions. Default: 0.2.
func WithAnalysisTemperature(t float64) AgentOption {
	return func(a *Agent) { a.temperature = t }
}

// WithAnalysisMaxTokens caps the completion length. Default: 4096.
func WithAnalysisMaxTokens(n int) AgentOption {
	return func(a *Agent) { a.maxTokens = n }
}

// Agent turns one transcript chunk into an [Intelligence] document. It owns
// the prompt, delegates the completion to an [llm.Provider], and pushes the
// raw response through the repair pipeline before decoding. Safe for
// concurrent use.
type Agent struct {
	provider    llm.Provider
	pipeline    *repair.Pipeline
	schema      *IntelligenceSchema
	log         *slog.Logger
	temperature float64
	maxTokens   int
}

// NewAgent constructs an [Agent] around the given provider and repair
// pipeline.
func NewAgent(provider llm.Provider, pipeline *repair.Pipeline, opts ...AgentOption) *Agent {
	a := &Agent{
		provider:    provider,
		pipeline:    pipeline,
		schema:      NewIntelligenceSchema(),
		log:         slog.Default(),
		temperature: defaultAnalysisTemperature,
		maxTokens:   defaultAnalysisMaxTokens,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Analyze extracts structured intelligence from one transcript chunk. The
// returned outcome always carries the repair log; when the response is
// unrecoverable the error wraps [ErrUnrecoverable] and the outcome holds
// the best-effort document.
func (a *Agent) Analyze(ctx context.Context, chunk transcript.Transcript) (Intelligence, repair.Outcome, error) {
	text := FormatForLLM(chunk)

	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: analysisSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: "Transcript:\n\n" + text},
		},
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	})
	if err != nil {
		return Intelligence{}, repair.Outcome{}, fmt.Errorf("analysis: completion: %w", err)
	}

	sourceContext := text
	if len(sourceContext) > sourceContextChars {
		sourceContext = sourceContext[:sourceContextChars]
	}

	outcome := a.pipeline.Process(ctx, resp.Content, a.schema, sourceContext)
	if !outcome.Valid {
		return Intelligence{}, outcome, fmt.Errorf("%w: %d validation errors after %s",
			ErrUnrecoverable, len(outcome.Errors), outcome.Phase)
	}

	intel, err := DecodeIntelligence(outcome.Doc)
	if err != nil {
		return Intelligence{}, outcome, fmt.Errorf("analysis: decode validated document: %w", err)
	}

	a.log.Debug("chunk analyzed",
		"video_id", chunk.VideoID,
		"phase", outcome.Phase,
		"signals", len(intel.Signals),
		"levels", len(intel.PriceLevels))
	return intel, outcome, nil
}

// FormatForLLM renders a transcript as timestamped lines, one segment per
// line: "[MM:SS] text".
func FormatForLLM(t transcript.Transcript) string {
	var b strings.Builder
	for _, s := range t.Segments {
		total := int(s.Start / time.Second)
		fmt.Fprintf(&b, "[%02d:%02d] %s\n", total/60, total%60, s.Text)
	}
	return b.String()
}
