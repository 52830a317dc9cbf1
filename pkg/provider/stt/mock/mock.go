// Package mock provides a test double for the stt.Transcriber interface.
//
// Use Transcriber to feed controlled transcript segments without loading a
// whisper model.
package mock

import (
	"context"
	"sync"

	"github.com/tickerlens/tickerlens/pkg/provider/stt"
)

// Ensure Transcriber implements the stt.Transcriber interface.
var _ stt.Transcriber = (*Transcriber)(nil)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// SampleCount is the number of PCM samples passed to Transcribe.
	SampleCount int
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Segments is returned by Transcribe.
	Segments []stt.Segment

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Segments, Err.
func (t *Transcriber) Transcribe(ctx context.Context, samples []float32) ([]stt.Segment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Calls = append(t.Calls, TranscribeCall{Ctx: ctx, SampleCount: len(samples)})
	if t.Err != nil {
		return nil, t.Err
	}
	return t.Segments, nil
}
