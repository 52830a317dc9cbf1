package analysis

import (
	"fmt"
	"time"

	"github.com/tickerlens/tickerlens/internal/transcript"
)

// DefaultChunkDuration is the target length of one analysis chunk. Three
// minutes keeps each completion comfortably inside model context limits.
const DefaultChunkDuration = 180 * time.Second

// Chunk is one time-bounded slice of a transcript.
type Chunk struct {
	// Transcript holds the chunk's segments with their original timings.
	Transcript transcript.Transcript

	// Start is the offset of the chunk within the full video. Frame moment
	// times reported for the chunk are relative to this offset.
	Start time.Duration

	// Index is the chunk's position in the split.
	Index int
}

// SplitChunks splits a transcript into chunks of roughly chunkDuration,
// breaking on segment boundaries. Segments are never split; a chunk ends
// when the next segment starts more than chunkDuration after the chunk
// began. Segment timings inside each chunk are rebased so the chunk starts
// at zero; Chunk.Start preserves the offset so merged results can restore
// absolute times. An empty transcript yields no chunks.
func SplitChunks(t transcript.Transcript, chunkDuration time.Duration) []Chunk {
	if len(t.Segments) == 0 {
		return nil
	}
	if chunkDuration <= 0 {
		chunkDuration = DefaultChunkDuration
	}

	var chunks []Chunk
	var current []transcript.Segment
	chunkStart := time.Duration(0)

	flush := func(start time.Duration) {
		chunks = append(chunks, Chunk{
			Transcript: transcript.Transcript{
				VideoID:  fmt.Sprintf("%s_chunk_%d", t.VideoID, len(chunks)),
				Segments: current,
				Source:   t.Source,
				Language: t.Language,
			},
			Start: start,
			Index: len(chunks),
		})
	}

	for _, seg := range t.Segments {
		if seg.Start > chunkStart+chunkDuration && len(current) > 0 {
			flush(chunkStart)
			current = nil
			chunkStart = seg.Start
		}
		seg.Start -= chunkStart
		current = append(current, seg)
	}
	if len(current) > 0 {
		flush(chunkStart)
	}

	return chunks
}
