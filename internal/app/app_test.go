package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tickerlens/tickerlens/internal/analysis"
	"github.com/tickerlens/tickerlens/internal/app"
	"github.com/tickerlens/tickerlens/internal/config"
	"github.com/tickerlens/tickerlens/internal/transcript"
	llmmock "github.com/tickerlens/tickerlens/pkg/provider/llm/mock"
	"github.com/tickerlens/tickerlens/pkg/store/postgres"
)

// fakeSource returns a canned transcript.
type fakeSource struct {
	t   transcript.Transcript
	err error
}

func (f *fakeSource) Fetch(context.Context, string) (transcript.Transcript, error) {
	return f.t, f.err
}

// fakeAnalyzer returns canned intelligence.
type fakeAnalyzer struct {
	intel analysis.Intelligence
	stats analysis.BatchStats
	err   error
}

func (f *fakeAnalyzer) Process(context.Context, transcript.Transcript) (analysis.Intelligence, analysis.BatchStats, error) {
	return f.intel, f.stats, f.err
}

// fakeStore records Save calls in memory.
type fakeStore struct {
	saved     map[string]postgres.Record
	lastEmbed []float32
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string]postgres.Record)}
}

func (f *fakeStore) Save(_ context.Context, rec postgres.Record, embedding []float32) error {
	f.saved[rec.VideoID] = rec
	f.lastEmbed = embedding
	return nil
}

func (f *fakeStore) Get(_ context.Context, videoID string) (*postgres.Record, error) {
	rec, ok := f.saved[videoID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeStore) List(context.Context, postgres.ListFilter) ([]postgres.Record, error) {
	return nil, nil
}

func (f *fakeStore) Related(context.Context, string, int) ([]postgres.RelatedVideo, error) {
	return nil, nil
}

func (f *fakeStore) Stats(context.Context) (postgres.Stats, error) {
	return postgres.Stats{Total: len(f.saved)}, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) Close() {}

func sampleTranscript() transcript.Transcript {
	return transcript.Transcript{
		VideoID: "vid1",
		Segments: []transcript.Segment{
			{Start: 0, Duration: 5 * time.Second, Text: "bitcoin looking strong above sixty two thousand"},
		},
		Source:   transcript.SourceYouTubeAPI,
		Language: "en",
	}
}

func sampleIntelligence() analysis.Intelligence {
	return analysis.Intelligence{
		ContentType:      analysis.ContentBitcoinAnalysis,
		PrimaryAsset:     "BTC",
		AnalysisStyle:    analysis.StyleTechnical,
		ExecutiveSummary: "Bullish above 62k.",
		PriceLevels: []analysis.Level{
			{Price: 62000, Label: "$62,000", Type: "major support", Confidence: 0.9},
		},
	}
}

func newTestApp(t *testing.T, opts ...app.Option) *app.App {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.LevelTypeDB = "" // no learning db unless a test opens one

	base := []app.Option{
		app.WithTranscriptSource(&fakeSource{t: sampleTranscript()}),
		app.WithAnalyzer(&fakeAnalyzer{
			intel: sampleIntelligence(),
			stats: analysis.BatchStats{Chunks: 3, Succeeded: 3, Repaired: 1},
		}),
	}
	a, err := app.New(context.Background(), cfg, &app.Providers{}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	return a
}

func TestAnalyzeVideo_SavesRecord(t *testing.T) {
	store := newFakeStore()
	a := newTestApp(t, app.WithStore(store))

	rec, err := a.AnalyzeVideo(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("AnalyzeVideo: %v", err)
	}

	if rec.VideoID != "vid1" {
		t.Errorf("VideoID = %q, want vid1", rec.VideoID)
	}
	if rec.Intelligence.ContentType != analysis.ContentBitcoinAnalysis {
		t.Errorf("ContentType = %q", rec.Intelligence.ContentType)
	}
	if rec.TranscriptSource != transcript.SourceYouTubeAPI {
		t.Errorf("TranscriptSource = %q", rec.TranscriptSource)
	}
	if rec.Processing.Chunks != 3 || rec.Processing.Repaired != 1 {
		t.Errorf("Processing = %+v", rec.Processing)
	}

	saved, ok := store.saved["vid1"]
	if !ok {
		t.Fatal("record was not saved")
	}
	if saved.Intelligence.PrimaryAsset != "BTC" {
		t.Errorf("saved PrimaryAsset = %q", saved.Intelligence.PrimaryAsset)
	}
}

func TestAnalyzeVideo_NoStoreStillReturnsRecord(t *testing.T) {
	a := newTestApp(t)

	rec, err := a.AnalyzeVideo(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("AnalyzeVideo: %v", err)
	}
	if rec == nil || rec.Intelligence.ExecutiveSummary == "" {
		t.Fatal("expected a populated record without a store")
	}
}

func TestAnalyzeVideo_FetchErrorPropagates(t *testing.T) {
	fetchErr := errors.New("network down")
	a := newTestApp(t, app.WithTranscriptSource(&fakeSource{err: fetchErr}))

	_, err := a.AnalyzeVideo(context.Background(), "vid1")
	if !errors.Is(err, fetchErr) {
		t.Fatalf("err = %v, want wrapped fetch error", err)
	}
}

func TestAnalyzeVideo_AnalyzerErrorPropagates(t *testing.T) {
	a := newTestApp(t, app.WithAnalyzer(&fakeAnalyzer{err: errors.New("all chunks failed")}))

	_, err := a.AnalyzeVideo(context.Background(), "vid1")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestAnalyzeVideo_NormalizesLevelTypes(t *testing.T) {
	dbPath := t.TempDir() + "/leveltypes.db"
	cfg := config.Default()
	cfg.Storage.LevelTypeDB = dbPath

	a, err := app.New(context.Background(), cfg, &app.Providers{},
		app.WithTranscriptSource(&fakeSource{t: sampleTranscript()}),
		app.WithAnalyzer(&fakeAnalyzer{intel: sampleIntelligence()}),
		app.WithStore(newFakeStore()),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	defer func() { _ = a.Shutdown(context.Background()) }()

	rec, err := a.AnalyzeVideo(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("AnalyzeVideo: %v", err)
	}
	if got := rec.Intelligence.PriceLevels[0].NormalizedType; got != "support" {
		t.Errorf("NormalizedType = %q, want support", got)
	}
}

func TestGetAnalysis_StoreDisabled(t *testing.T) {
	a := newTestApp(t)

	_, err := a.GetAnalysis(context.Background(), "vid1")
	if !errors.Is(err, app.ErrStoreDisabled) {
		t.Fatalf("err = %v, want ErrStoreDisabled", err)
	}
}

func TestLevelTypeStats_ClassifierDisabled(t *testing.T) {
	a := newTestApp(t)

	_, err := a.LevelTypeStats(context.Background())
	if !errors.Is(err, app.ErrClassifierDisabled) {
		t.Fatalf("err = %v, want ErrClassifierDisabled", err)
	}
}

func TestNew_RequiresLLMWithoutInjectedAnalyzer(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.LevelTypeDB = ""

	_, err := app.New(context.Background(), cfg, &app.Providers{},
		app.WithTranscriptSource(&fakeSource{t: sampleTranscript()}),
	)
	if err == nil {
		t.Fatal("expected error when no LLM provider and no injected analyzer")
	}
}

func TestNew_BuildsAnalyzerFromProviders(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.LevelTypeDB = ""

	a, err := app.New(context.Background(), cfg, &app.Providers{
		LLM:     &llmmock.Provider{},
		LLMName: "openai",
	})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	if a == nil {
		t.Fatal("nil app")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	a := newTestApp(t)

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
