package transcript

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tickerlens/tickerlens/pkg/provider/stt"
)

// ErrAudioNotFound indicates no audio file exists for the requested video.
var ErrAudioNotFound = errors.New("transcript: audio file not found")

// DirAudioLoader loads pre-extracted audio for the speech-to-text fallback
// from a local directory. It expects one file per video named
// "<videoID>.wav" containing 16-bit mono PCM at [stt.SampleRate] Hz.
// Downloading or extracting audio from videos is out of scope; the loader
// only consumes what an external tool has already produced.
type DirAudioLoader struct {
	dir string
}

// Compile-time interface assertion.
var _ AudioLoader = (*DirAudioLoader)(nil)

// NewDirAudioLoader returns a loader rooted at dir.
func NewDirAudioLoader(dir string) *DirAudioLoader {
	return &DirAudioLoader{dir: dir}
}

// Load reads and decodes "<dir>/<videoID>.wav" into float32 samples.
func (l *DirAudioLoader) Load(ctx context.Context, videoID string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(l.dir, filepath.Base(videoID)+".wav")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrAudioNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: read audio: %w", err)
	}

	samples, err := decodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("transcript: decode %s: %w", path, err)
	}
	return samples, nil
}

// decodeWAV decodes a canonical RIFF/WAVE file holding 16-bit mono PCM at
// [stt.SampleRate] Hz into normalized float32 samples. Anything else is
// rejected rather than resampled.
func decodeWAV(data []byte) ([]float32, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errors.New("not a RIFF/WAVE file")
	}

	var (
		fmtSeen    bool
		channels   uint16
		sampleRate uint32
		bitDepth   uint16
	)

	// Walk the chunk list: fmt must precede data.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			return nil, errors.New("truncated chunk")
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, errors.New("short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("unsupported audio format %d (want PCM)", format)
			}
			channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			bitDepth = binary.LittleEndian.Uint16(data[body+14 : body+16])
			fmtSeen = true

		case "data":
			if !fmtSeen {
				return nil, errors.New("data chunk before fmt chunk")
			}
			if channels != 1 {
				return nil, fmt.Errorf("got %d channels, want mono", channels)
			}
			if sampleRate != stt.SampleRate {
				return nil, fmt.Errorf("got %d Hz, want %d Hz", sampleRate, stt.SampleRate)
			}
			if bitDepth != 16 {
				return nil, fmt.Errorf("got %d-bit samples, want 16-bit", bitDepth)
			}
			pcm := data[body : body+size]
			samples := make([]float32, len(pcm)/2)
			for i := range samples {
				s := int16(binary.LittleEndian.Uint16(pcm[2*i : 2*i+2]))
				samples[i] = float32(s) / 32768
			}
			return samples, nil
		}

		// Chunks are word-aligned.
		off = body + size + size%2
	}

	return nil, errors.New("no data chunk")
}
