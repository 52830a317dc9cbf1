package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tickerlens/tickerlens/pkg/provider/stt"
)

// AudioLoader supplies the mono 16 kHz PCM samples for a video, downloading
// or extracting audio as needed. It is only consulted when the caption path
// fails.
type AudioLoader interface {
	// Load returns the audio samples for videoID.
	Load(ctx context.Context, videoID string) ([]float32, error)
}

// FetcherOption is a functional option for configuring a [Fetcher].
type FetcherOption func(*Fetcher)

// WithTranscriber enables the speech-to-text fallback. Both a transcriber
// and an [AudioLoader] are required for the fallback to activate.
func WithTranscriber(t stt.Transcriber, audio AudioLoader) FetcherOption {
	return func(f *Fetcher) {
		f.transcriber = t
		f.audio = audio
	}
}

// WithFetcherLogger sets the structured logger. Default: slog.Default().
func WithFetcherLogger(log *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.log = log
	}
}

// Fetcher acquires transcripts with an automatic fallback chain: YouTube
// captions first, local speech-to-text second. Safe for concurrent use.
type Fetcher struct {
	youtube     *YouTubeClient
	transcriber stt.Transcriber
	audio       AudioLoader
	log         *slog.Logger
}

// NewFetcher constructs a [Fetcher] around the given caption client.
func NewFetcher(youtube *YouTubeClient, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		youtube: youtube,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch returns the transcript for videoID. Caption failures fall through
// to speech-to-text when a transcriber is configured; the caption error is
// only surfaced when no fallback exists or the fallback also fails.
func (f *Fetcher) Fetch(ctx context.Context, videoID string) (Transcript, error) {
	t, err := f.youtube.Fetch(ctx, videoID)
	if err == nil {
		f.log.Info("transcript acquired",
			"video_id", videoID, "source", t.Source, "segments", len(t.Segments))
		return t, nil
	}

	if f.transcriber == nil || f.audio == nil {
		return Transcript{}, fmt.Errorf("transcript: captions unavailable and no stt fallback: %w", err)
	}

	if errors.Is(err, ErrNoCaptions) {
		f.log.Info("no captions, falling back to speech-to-text", "video_id", videoID)
	} else {
		f.log.Warn("caption fetch failed, falling back to speech-to-text",
			"video_id", videoID, "error", err)
	}

	samples, err := f.audio.Load(ctx, videoID)
	if err != nil {
		return Transcript{}, fmt.Errorf("transcript: load audio: %w", err)
	}

	segs, err := f.transcriber.Transcribe(ctx, samples)
	if err != nil {
		return Transcript{}, fmt.Errorf("transcript: speech-to-text: %w", err)
	}

	t = FromSTT(videoID, segs)
	f.log.Info("transcript acquired",
		"video_id", videoID, "source", t.Source, "segments", len(t.Segments))
	return t, nil
}

// FromSTT converts speech-to-text segments into a [Transcript].
func FromSTT(videoID string, segs []stt.Segment) Transcript {
	out := Transcript{
		VideoID:  videoID,
		Segments: make([]Segment, 0, len(segs)),
		Source:   SourceWhisper,
		Language: "en",
	}
	for _, s := range segs {
		out.Segments = append(out.Segments, Segment{
			Text:     s.Text,
			Start:    s.Start,
			Duration: s.End - s.Start,
		})
	}
	return out
}
