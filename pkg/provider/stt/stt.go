// Package stt defines the Transcriber interface for speech-to-text backends.
//
// Transcription here is batch-oriented: a whole audio track is decoded into
// PCM samples and transcribed in one call, producing timed segments. This is
// the fallback path used when a video has no caption track.
package stt

import (
	"context"
	"time"
)

// SampleRate is the PCM sample rate expected by Transcribe, in Hz.
const SampleRate = 16000

// Segment is a timed span of recognized speech.
type Segment struct {
	// Start is the offset of the segment from the beginning of the audio.
	Start time.Duration

	// End is the offset at which the segment ends.
	End time.Duration

	// Text is the recognized speech, whitespace-trimmed.
	Text string
}

// Transcriber converts recorded audio into timed transcript segments.
//
// Implementations must be safe for concurrent use.
type Transcriber interface {
	// Transcribe runs speech recognition over mono float32 PCM samples at
	// SampleRate Hz and returns the recognized segments in chronological
	// order. Empty segments are dropped. Returns an error if recognition
	// fails or ctx is cancelled.
	Transcribe(ctx context.Context, samples []float32) ([]Segment, error)
}
