// Package app wires all Tickerlens subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the REST API until the context is cancelled, and
// Shutdown tears everything down in order. App also implements the service
// surface consumed by the HTTP layer (api.Service) and the MCP tool server.
//
// For testing, inject fakes via functional options (WithStore,
// WithTranscriptSource, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/tickerlens/tickerlens/internal/analysis"
	"github.com/tickerlens/tickerlens/internal/api"
	"github.com/tickerlens/tickerlens/internal/config"
	"github.com/tickerlens/tickerlens/internal/health"
	"github.com/tickerlens/tickerlens/internal/leveltype"
	"github.com/tickerlens/tickerlens/internal/observe"
	"github.com/tickerlens/tickerlens/internal/repair"
	"github.com/tickerlens/tickerlens/internal/resilience"
	"github.com/tickerlens/tickerlens/internal/transcript"
	"github.com/tickerlens/tickerlens/pkg/provider/embeddings"
	"github.com/tickerlens/tickerlens/pkg/provider/llm"
	"github.com/tickerlens/tickerlens/pkg/provider/stt"
	"github.com/tickerlens/tickerlens/pkg/store/postgres"
)

// ErrStoreDisabled is returned by lookup methods when no analysis store is
// configured (storage.postgres_dsn unset).
var ErrStoreDisabled = errors.New("app: analysis store not configured")

// ErrClassifierDisabled is returned by level-type methods when no learning
// database is configured.
var ErrClassifierDisabled = errors.New("app: level type classifier not configured")

// maxEmbeddingChars bounds the text sent to the embeddings provider. Long
// transcripts are truncated; the executive summary always survives because
// it leads the text.
const maxEmbeddingChars = 8000

// NamedLLM pairs a provider instance with its config name for failover
// logging.
type NamedLLM struct {
	Name     string
	Provider llm.Provider
}

// Providers holds one value per provider slot. Nil means the provider is not
// configured. Populated by main via the config registry.
type Providers struct {
	LLM          llm.Provider
	LLMName      string
	LLMFallbacks []NamedLLM
	STT          stt.Transcriber
	Embeddings   embeddings.Provider
}

// transcriptSource acquires transcripts. *transcript.Fetcher implements it.
type transcriptSource interface {
	Fetch(ctx context.Context, videoID string) (transcript.Transcript, error)
}

// analyzer turns a transcript into structured intelligence.
// *analysis.BatchProcessor implements it.
type analyzer interface {
	Process(ctx context.Context, t transcript.Transcript) (analysis.Intelligence, analysis.BatchStats, error)
}

// analysisStore persists and queries analyses. *postgres.Store implements it.
type analysisStore interface {
	Save(ctx context.Context, rec postgres.Record, embedding []float32) error
	Get(ctx context.Context, videoID string) (*postgres.Record, error)
	List(ctx context.Context, filter postgres.ListFilter) ([]postgres.Record, error)
	Related(ctx context.Context, videoID string, topK int) ([]postgres.RelatedVideo, error)
	Stats(ctx context.Context) (postgres.Stats, error)
	Ping(ctx context.Context) error
	Close()
}

// App owns all subsystem lifetimes and exposes the analysis operations.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics *observe.Metrics
	source  transcriptSource
	batch   analyzer
	store   analysisStore
	levels  *leveltype.Classifier

	// watchPath enables config hot-reload when non-empty.
	watchPath string
	logLevel  *slog.LevelVar

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects an analysis store instead of connecting from config.
func WithStore(s analysisStore) Option {
	return func(a *App) { a.store = s }
}

// WithTranscriptSource injects a transcript source instead of the YouTube
// fetcher built from config.
func WithTranscriptSource(src transcriptSource) Option {
	return func(a *App) { a.source = src }
}

// WithAnalyzer injects an analyzer instead of the batch processor built from
// config.
func WithAnalyzer(an analyzer) Option {
	return func(a *App) { a.batch = an }
}

// WithClassifier injects a level type classifier instead of opening the
// learning database from config.
func WithClassifier(c *leveltype.Classifier) Option {
	return func(a *App) { a.levels = c }
}

// WithMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithConfigWatch enables hot-reload of the config file at path while Run is
// active. lvl receives log level changes; other hot-reloadable changes are
// logged (pipeline tuning requires restart to take effect mid-flight).
func WithConfigWatch(path string, lvl *slog.LevelVar) Option {
	return func(a *App) {
		a.watchPath = path
		a.logLevel = lvl
	}
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initAnalyzer(); err != nil {
		return nil, fmt.Errorf("app: init analyzer: %w", err)
	}
	a.initTranscripts()
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initClassifier(); err != nil {
		return nil, fmt.Errorf("app: init classifier: %w", err)
	}

	return a, nil
}

// initAnalyzer builds the LLM failover group, the repair pipeline, and the
// batch processor, unless an analyzer was injected.
func (a *App) initAnalyzer() error {
	if a.batch != nil {
		return nil
	}
	if a.providers.LLM == nil {
		return errors.New("an LLM provider is required")
	}

	prov := a.providers.LLM
	if len(a.providers.LLMFallbacks) > 0 {
		name := a.providers.LLMName
		if name == "" {
			name = "primary"
		}
		fb := resilience.NewLLMFallback(prov, name, resilience.FallbackConfig{})
		for _, f := range a.providers.LLMFallbacks {
			fb.AddFallback(f.Name, f.Provider)
		}
		prov = fb
		slog.Info("llm failover enabled", "fallbacks", len(a.providers.LLMFallbacks))
	}

	pipeOpts := []repair.Option{
		repair.WithSimilarityThreshold(a.cfg.Repair.SimilarityThreshold),
		repair.WithObserver(observe.NewPhaseObserver(a.metrics)),
	}
	if a.cfg.Repair.EnableLLMRepair {
		pipeOpts = append(pipeOpts, repair.WithLLMRepairer(repair.NewLLMRepairer(prov,
			repair.WithTemperature(a.cfg.Repair.LLMTemperature),
			repair.WithTimeout(a.cfg.Repair.LLMTimeout.Std()),
		)))
	}
	pipeline := repair.NewPipeline(pipeOpts...)

	agent := analysis.NewAgent(prov, pipeline)
	a.batch = analysis.NewBatchProcessor(agent,
		analysis.WithChunkDuration(time.Duration(a.cfg.Analysis.ChunkSeconds)*time.Second),
		analysis.WithWorkers(a.cfg.Analysis.Workers),
	)
	return nil
}

// initTranscripts builds the caption fetcher with the speech-to-text
// fallback when both a transcriber and an audio directory are configured.
func (a *App) initTranscripts() {
	if a.source != nil {
		return
	}

	yt := transcript.NewYouTubeClient()
	var opts []transcript.FetcherOption
	if a.providers.STT != nil && a.cfg.Analysis.AudioDir != "" {
		opts = append(opts, transcript.WithTranscriber(
			a.providers.STT,
			transcript.NewDirAudioLoader(a.cfg.Analysis.AudioDir),
		))
		slog.Info("speech-to-text fallback enabled", "audio_dir", a.cfg.Analysis.AudioDir)
	}
	a.source = transcript.NewFetcher(yt, opts...)
}

// initStore connects the PostgreSQL analysis store when a DSN is configured.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil || a.cfg.Storage.PostgresDSN == "" {
		return nil
	}

	store, err := postgres.NewStore(ctx, a.cfg.Storage.PostgresDSN, a.cfg.Storage.EmbeddingDimensions)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initClassifier opens the level type learning database when configured.
func (a *App) initClassifier() error {
	if a.levels != nil || a.cfg.Storage.LevelTypeDB == "" {
		return nil
	}

	c, err := leveltype.New(a.cfg.Storage.LevelTypeDB)
	if err != nil {
		return err
	}
	a.levels = c
	a.closers = append(a.closers, c.Close)
	return nil
}

// AnalyzeVideo runs the full pipeline for one video: transcript acquisition,
// chunked analysis with repair, level type normalization, embedding, and
// persistence. The returned record reflects what was stored (or would have
// been stored when no store is configured).
func (a *App) AnalyzeVideo(ctx context.Context, videoID string) (*postgres.Record, error) {
	a.metrics.ActiveAnalyses.Add(ctx, 1)
	defer a.metrics.ActiveAnalyses.Add(ctx, -1)

	fetchStart := time.Now()
	t, err := a.source.Fetch(ctx, videoID)
	if err != nil {
		return nil, err
	}
	a.metrics.TranscriptFetchDuration.Record(ctx, time.Since(fetchStart).Seconds(),
		metric.WithAttributes(observe.Attr("source", string(t.Source))))

	intel, stats, err := a.batch.Process(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("app: analyze %s: %w", videoID, err)
	}

	a.normalizeLevels(ctx, videoID, &intel)

	var embedding []float32
	if a.providers.Embeddings != nil && a.store != nil {
		embedding, err = a.providers.Embeddings.Embed(ctx, embeddingText(intel, t))
		if err != nil {
			// A missing embedding only disables similarity lookup for this
			// video; the analysis itself is still worth keeping.
			a.metrics.RecordProviderError(ctx, a.cfg.Providers.Embeddings.Name, "embeddings")
			slog.Warn("embedding failed, storing without vector", "video_id", videoID, "error", err)
			embedding = nil
		}
	}

	rec := postgres.Record{
		VideoID:            videoID,
		Intelligence:       intel,
		TranscriptSource:   t.Source,
		TranscriptLanguage: t.Language,
		Duration:           t.Duration(),
		Processing: postgres.ProcessingInfo{
			Model:     a.cfg.Providers.LLM.Model,
			Chunks:    stats.Chunks,
			Succeeded: stats.Succeeded,
			Repaired:  stats.Repaired,
			Failed:    stats.Failed,
		},
	}

	if a.store != nil {
		if err := a.store.Save(ctx, rec, embedding); err != nil {
			return nil, fmt.Errorf("app: save %s: %w", videoID, err)
		}
	}

	a.metrics.RecordVideoAnalyzed(ctx, string(intel.ContentType))
	slog.Info("video analyzed",
		"video_id", videoID,
		"content_type", intel.ContentType,
		"chunks", stats.Chunks,
		"succeeded", stats.Succeeded,
		"repaired", stats.Repaired,
		"failed", stats.Failed,
	)
	return &rec, nil
}

// normalizeLevels assigns canonical level types via the adaptive classifier.
// Classification errors degrade to the raw type rather than failing the run.
func (a *App) normalizeLevels(ctx context.Context, videoID string, intel *analysis.Intelligence) {
	if a.levels == nil {
		return
	}
	for i := range intel.PriceLevels {
		lvl := &intel.PriceLevels[i]
		res, err := a.levels.Normalize(ctx, lvl.Type, lvl.Context, videoID)
		if err != nil {
			slog.Warn("level type normalization failed",
				"video_id", videoID, "type", lvl.Type, "error", err)
			continue
		}
		lvl.NormalizedType = res.NormalizedType
	}
}

// GetAnalysis returns a stored analysis, or (nil, nil) when none exists.
func (a *App) GetAnalysis(ctx context.Context, videoID string) (*postgres.Record, error) {
	if a.store == nil {
		return nil, ErrStoreDisabled
	}
	return a.store.Get(ctx, videoID)
}

// ListAnalyses returns stored analyses matching the filter.
func (a *App) ListAnalyses(ctx context.Context, filter postgres.ListFilter) ([]postgres.Record, error) {
	if a.store == nil {
		return nil, ErrStoreDisabled
	}
	return a.store.List(ctx, filter)
}

// RelatedVideos returns up to limit videos ranked by embedding similarity.
func (a *App) RelatedVideos(ctx context.Context, videoID string, limit int) ([]postgres.RelatedVideo, error) {
	if a.store == nil {
		return nil, ErrStoreDisabled
	}
	return a.store.Related(ctx, videoID, limit)
}

// AnalysisStats aggregates store-level counts.
func (a *App) AnalysisStats(ctx context.Context) (postgres.Stats, error) {
	if a.store == nil {
		return postgres.Stats{}, ErrStoreDisabled
	}
	return a.store.Stats(ctx)
}

// LevelTypeStats aggregates level type classification statistics.
func (a *App) LevelTypeStats(ctx context.Context) (leveltype.Stats, error) {
	if a.levels == nil {
		return leveltype.Stats{}, ErrClassifierDisabled
	}
	return a.levels.Stats(ctx)
}

// ReviewLevelTypes returns recent classifications in a confidence band.
func (a *App) ReviewLevelTypes(ctx context.Context, limit int, minConfidence, maxConfidence float64) ([]leveltype.HistoryEntry, error) {
	if a.levels == nil {
		return nil, ErrClassifierDisabled
	}
	return a.levels.Review(ctx, limit, minConfidence, maxConfidence)
}

// CorrectLevelType records a manual correction, re-teaching the pattern
// table.
func (a *App) CorrectLevelType(ctx context.Context, historyID int64, correctType string) error {
	if a.levels == nil {
		return ErrClassifierDisabled
	}
	return a.levels.Correct(ctx, historyID, correctType)
}

// Compile-time check: App provides the HTTP service surface.
var _ api.Service = (*App)(nil)

// Run serves the REST API (and the config watcher, when enabled) until ctx
// is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	srvOpts := []api.Option{
		api.WithMetrics(a.metrics),
		api.WithHealthChecks(a.healthChecks()...),
	}
	if tls := a.cfg.Server.TLS; tls != nil && tls.CertFile != "" {
		srvOpts = append(srvOpts, api.WithTLS(tls.CertFile, tls.KeyFile))
	}
	srv := api.NewServer(a, srvOpts...)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, a.cfg.Server.ListenAddr)
	})

	if a.watchPath != "" {
		g.Go(func() error {
			return a.watchConfig(ctx)
		})
	}

	return g.Wait()
}

// healthChecks builds the /readyz checker list from the configured
// subsystems.
func (a *App) healthChecks() []health.Checker {
	var checks []health.Checker
	if a.store != nil {
		checks = append(checks, health.Checker{
			Name:  "database",
			Check: a.store.Ping,
		})
	}
	checks = append(checks, health.Checker{
		Name: "analyzer",
		Check: func(context.Context) error {
			if a.batch == nil {
				return errors.New("no analyzer configured")
			}
			return nil
		},
	})
	return checks
}

// watchConfig polls the config file and applies hot-reloadable changes.
func (a *App) watchConfig(ctx context.Context) error {
	w, err := config.NewWatcher(a.watchPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if !diff.Any() {
			return
		}
		if diff.LogLevelChanged && a.logLevel != nil {
			a.logLevel.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		if diff.RepairChanged || diff.AnalysisChanged {
			slog.Warn("repair/analysis tuning changed; restart to apply to the pipeline")
		}
	})
	if err != nil {
		return fmt.Errorf("app: config watcher: %w", err)
	}
	defer w.Stop()

	<-ctx.Done()
	return ctx.Err()
}

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// embeddingText assembles the text to embed: the executive summary first so
// it survives truncation, then the transcript.
func embeddingText(intel analysis.Intelligence, t transcript.Transcript) string {
	var b strings.Builder
	if intel.ExecutiveSummary != "" {
		b.WriteString(intel.ExecutiveSummary)
		b.WriteString("\n\n")
	}
	b.WriteString(t.FullText())

	text := b.String()
	if len(text) > maxEmbeddingChars {
		text = text[:maxEmbeddingChars]
	}
	return text
}

// slogLevel maps a config log level to slog.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
