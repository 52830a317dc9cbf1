// Package transcript acquires timed video transcripts.
//
// The preferred source is YouTube's timedtext API ([YouTubeClient]), which
// returns the captions YouTube already has. When captions are unavailable
// the [Fetcher] falls back to local speech-to-text through
// pkg/provider/stt, so every video ends up with a transcript one way or
// the other.
package transcript

import (
	"strings"
	"time"
)

// Source identifies where a transcript came from.
type Source string

const (
	// SourceYouTubeAPI marks transcripts fetched from YouTube's timedtext API.
	SourceYouTubeAPI Source = "youtube_api"

	// SourceWhisper marks transcripts produced by local speech-to-text.
	SourceWhisper Source = "whisper"
)

// Segment is one timed span of transcript text.
type Segment struct {
	// Text is the spoken text of the span.
	Text string `json:"text"`

	// Start is the offset of the span from the start of the video.
	Start time.Duration `json:"start"`

	// Duration is the length of the span.
	Duration time.Duration `json:"duration"`
}

// End returns the offset at which the segment ends.
func (s Segment) End() time.Duration {
	return s.Start + s.Duration
}

// Transcript is a full timed transcript for one video.
type Transcript struct {
	// VideoID identifies the source video.
	VideoID string `json:"video_id"`

	// Segments are the timed spans in playback order.
	Segments []Segment `json:"segments"`

	// Source records which acquisition path produced the transcript.
	Source Source `json:"source"`

	// Language is the BCP-47 language tag of the transcript.
	Language string `json:"language"`
}

// FullText joins all segment texts with single spaces.
func (t Transcript) FullText() string {
	parts := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

// Duration returns the end offset of the last segment, or zero for an
// empty transcript.
func (t Transcript) Duration() time.Duration {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].End()
}
