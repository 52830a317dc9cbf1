package analysis_test

import (
	"testing"
	"time"

	"github.com/tickerlens/tickerlens/internal/analysis"
	"github.com/tickerlens/tickerlens/internal/transcript"
)

func seg(start, dur time.Duration, text string) transcript.Segment {
	return transcript.Segment{Text: text, Start: start, Duration: dur}
}

func TestSplitChunks(t *testing.T) {
	t.Parallel()

	tr := transcript.Transcript{
		VideoID: "vid",
		Source:  transcript.SourceYouTubeAPI,
		Segments: []transcript.Segment{
			seg(0, 10*time.Second, "a"),
			seg(100*time.Second, 10*time.Second, "b"),
			seg(200*time.Second, 10*time.Second, "c"),
			seg(210*time.Second, 10*time.Second, "d"),
			seg(400*time.Second, 10*time.Second, "e"),
		},
	}

	chunks := analysis.SplitChunks(tr, 180*time.Second)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	if chunks[0].Start != 0 || len(chunks[0].Transcript.Segments) != 2 {
		t.Errorf("chunk 0: start=%v segments=%d, want 0s and 2",
			chunks[0].Start, len(chunks[0].Transcript.Segments))
	}
	if chunks[1].Start != 200*time.Second || len(chunks[1].Transcript.Segments) != 2 {
		t.Errorf("chunk 1: start=%v segments=%d, want 3m20s and 2",
			chunks[1].Start, len(chunks[1].Transcript.Segments))
	}
	if chunks[2].Start != 400*time.Second || len(chunks[2].Transcript.Segments) != 1 {
		t.Errorf("chunk 2: start=%v segments=%d, want 6m40s and 1",
			chunks[2].Start, len(chunks[2].Transcript.Segments))
	}

	// Segment timings are rebased per chunk.
	if got := chunks[1].Transcript.Segments[0].Start; got != 0 {
		t.Errorf("chunk 1 first segment start = %v, want 0", got)
	}
	if got := chunks[1].Transcript.Segments[1].Start; got != 10*time.Second {
		t.Errorf("chunk 1 second segment start = %v, want 10s", got)
	}

	// Chunk IDs and metadata derive from the parent transcript.
	if got := chunks[1].Transcript.VideoID; got != "vid_chunk_1" {
		t.Errorf("chunk 1 video id = %q, want %q", got, "vid_chunk_1")
	}
	if got := chunks[1].Transcript.Source; got != transcript.SourceYouTubeAPI {
		t.Errorf("chunk 1 source = %q, want %q", got, transcript.SourceYouTubeAPI)
	}
}

func TestSplitChunks_ShortTranscriptSingleChunk(t *testing.T) {
	t.Parallel()

	tr := transcript.Transcript{
		VideoID:  "vid",
		Segments: []transcript.Segment{seg(0, 5*time.Second, "a"), seg(5*time.Second, 5*time.Second, "b")},
	}
	chunks := analysis.SplitChunks(tr, analysis.DefaultChunkDuration)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Start != 0 || chunks[0].Index != 0 {
		t.Errorf("chunk 0: start=%v index=%d, want zero values", chunks[0].Start, chunks[0].Index)
	}
}

func TestSplitChunks_Empty(t *testing.T) {
	t.Parallel()

	if got := analysis.SplitChunks(transcript.Transcript{}, analysis.DefaultChunkDuration); got != nil {
		t.Fatalf("SplitChunks on empty transcript = %v, want nil", got)
	}
}
