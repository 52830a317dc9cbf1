// Package analysis extracts structured trading intelligence from video
// transcripts.
//
// An [Agent] sends one transcript chunk to an LLM and pushes the raw
// response through the repair pipeline (internal/repair) until it conforms
// to [IntelligenceSchema]. The [BatchProcessor] splits long transcripts
// into chunks, analyzes them concurrently, and merges the per-chunk results
// without losing data when individual chunks fail.
package analysis

import "encoding/json"

// ContentType classifies what kind of video the transcript came from.
type ContentType string

const (
	ContentBitcoinAnalysis ContentType = "bitcoin_analysis"
	ContentAltcoinAnalysis ContentType = "altcoin_analysis"
	ContentMarketNews      ContentType = "market_news"
	ContentTradingEdu      ContentType = "trading_education"
	ContentPortfolioReview ContentType = "portfolio_review"
	ContentGeneral         ContentType = "general"
)

// ContentTypes is the legal set of content type values.
var ContentTypes = []string{
	string(ContentBitcoinAnalysis),
	string(ContentAltcoinAnalysis),
	string(ContentMarketNews),
	string(ContentTradingEdu),
	string(ContentPortfolioReview),
	string(ContentGeneral),
}

// Direction is the side of a trading signal.
type Direction string

const (
	DirectionLong    Direction = "long"
	DirectionShort   Direction = "short"
	DirectionNeutral Direction = "neutral"
)

// Directions is the legal set of signal directions.
var Directions = []string{
	string(DirectionLong),
	string(DirectionShort),
	string(DirectionNeutral),
}

// Timeframe is the intended holding period of a signal.
type Timeframe string

const (
	TimeframeScalp       Timeframe = "scalp"
	TimeframeDayTrade    Timeframe = "day_trade"
	TimeframeSwingTrade  Timeframe = "swing_trade"
	TimeframePosition    Timeframe = "position"
	TimeframeLongTerm    Timeframe = "long_term"
	TimeframeUnspecified Timeframe = "unspecified"
)

// Timeframes is the legal set of signal timeframes.
var Timeframes = []string{
	string(TimeframeScalp),
	string(TimeframeDayTrade),
	string(TimeframeSwingTrade),
	string(TimeframePosition),
	string(TimeframeLongTerm),
	string(TimeframeUnspecified),
}

// MarketContext is the overall sentiment expressed in the video.
type MarketContext string

const (
	MarketBullish MarketContext = "bullish"
	MarketBearish MarketContext = "bearish"
	MarketNeutral MarketContext = "neutral"
	MarketMixed   MarketContext = "mixed"
)

// MarketContexts is the legal set of market context values.
var MarketContexts = []string{
	string(MarketBullish),
	string(MarketBearish),
	string(MarketNeutral),
	string(MarketMixed),
}

// AnalysisStyle describes the analytic approach of the video.
type AnalysisStyle string

const (
	StyleTechnical   AnalysisStyle = "technical"
	StyleFundamental AnalysisStyle = "fundamental"
	StyleNews        AnalysisStyle = "news"
	StyleMixed       AnalysisStyle = "mixed"
)

// AnalysisStyles is the legal set of analysis style values.
var AnalysisStyles = []string{
	string(StyleTechnical),
	string(StyleFundamental),
	string(StyleNews),
	string(StyleMixed),
}

// Level is a price level identified in the video.
type Level struct {
	// Price is the numeric price value.
	Price float64 `json:"price"`

	// Label is the original text representation, e.g. "$65,200".
	Label string `json:"label"`

	// Type is the raw level type as extracted. It is normalized downstream
	// by internal/leveltype.
	Type string `json:"type"`

	// Confidence is the extraction confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Timestamp is the offset in seconds at which the level was mentioned.
	Timestamp int `json:"timestamp,omitempty"`

	// Context is the surrounding discussion, when captured.
	Context string `json:"context,omitempty"`

	// NormalizedType is the canonical level type assigned by the classifier.
	NormalizedType string `json:"normalized_type,omitempty"`
}

// Signal is a trading signal extracted from the video.
type Signal struct {
	// Asset is the symbol the signal concerns (BTC, ETH, ...).
	Asset string `json:"asset"`

	// Direction is long, short, or neutral.
	Direction Direction `json:"direction"`

	// EntryPrice, TargetPrice, and StopLoss are formatted price strings,
	// e.g. "$65,200", empty when not stated.
	EntryPrice  string `json:"entry_price,omitempty"`
	TargetPrice string `json:"target_price,omitempty"`
	StopLoss    string `json:"stop_loss,omitempty"`

	// Timeframe is the intended holding period.
	Timeframe Timeframe `json:"timeframe"`

	// Confidence is the extraction confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Timestamp is the offset in seconds at which the signal was given.
	Timestamp int `json:"timestamp,omitempty"`

	// Rationale is the speaker's stated reasoning, when captured.
	Rationale string `json:"rationale,omitempty"`
}

// FrameMoment is one suggested moment to extract a video frame.
type FrameMoment struct {
	// Time is the offset in seconds.
	Time int `json:"time"`

	// Importance scores how critical the moment is, in [0, 1].
	Importance float64 `json:"importance"`

	// Reason states why the moment matters.
	Reason string `json:"reason"`
}

// FramePlan is the LLM-suggested plan for frame extraction.
type FramePlan struct {
	// SuggestedCount is the recommended number of frames, in [5, 30].
	SuggestedCount int `json:"suggested_count"`

	// KeyMoments lists the moments worth capturing.
	KeyMoments []FrameMoment `json:"key_moments"`

	// CoverageIntervalSeconds is the regular coverage interval.
	CoverageIntervalSeconds int `json:"coverage_interval_seconds"`
}

// Intelligence is the structured output of transcript analysis.
type Intelligence struct {
	ContentType              ContentType   `json:"content_type"`
	PrimaryAsset             string        `json:"primary_asset,omitempty"`
	AnalysisStyle            AnalysisStyle `json:"analysis_style"`
	ClassificationConfidence float64       `json:"classification_confidence"`

	AssetsDiscussed     []string `json:"assets_discussed"`
	PriceLevels         []Level  `json:"price_levels"`
	Signals             []Signal `json:"signals"`
	IndicatorsMentioned []string `json:"indicators_mentioned"`
	PatternsIdentified  []string `json:"patterns_identified"`

	ExecutiveSummary string        `json:"executive_summary"`
	KeyTopics        []string      `json:"key_topics"`
	MarketContext    MarketContext `json:"market_context"`
	FullCleanedText  string        `json:"full_cleaned_text"`

	FramePlan FramePlan `json:"frame_extraction_plan"`
}

// DecodeIntelligence converts a validated document into an [Intelligence].
// The document must already conform to [IntelligenceSchema]; decoding a
// non-conforming document returns the underlying JSON error.
func DecodeIntelligence(doc map[string]any) (Intelligence, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return Intelligence{}, err
	}
	var intel Intelligence
	if err := json.Unmarshal(raw, &intel); err != nil {
		return Intelligence{}, err
	}
	return intel, nil
}
