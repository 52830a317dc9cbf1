package whisper

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// pcmToFloat32 converts 16-bit signed little-endian PCM audio to float32
// samples normalised to the range [-1.0, 1.0]. The input length must be
// even (two bytes per sample); any trailing odd byte is silently ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// pcmToFloat32Mono down-mixes multi-channel 16-bit PCM to mono float32 by
// averaging all channels per frame. If channels is 1 this is equivalent to
// pcmToFloat32.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		return pcmToFloat32(pcm)
	}
	samplesPerChannel := len(pcm) / (2 * channels)
	mono := make([]float32, samplesPerChannel)
	for i := range samplesPerChannel {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// DecodeWAV reads a RIFF/WAVE stream containing 16-bit PCM audio and returns
// mono float32 samples normalised to [-1.0, 1.0], along with the sample rate
// from the fmt chunk. Multi-channel audio is down-mixed by averaging.
func DecodeWAV(r io.Reader) (samples []float32, sampleRate int, err error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, 0, fmt.Errorf("whisper: read RIFF header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, 0, errors.New("whisper: not a RIFF/WAVE stream")
	}

	var (
		channels int
		rate     int
		data     []byte
	)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, 0, fmt.Errorf("whisper: read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, 0, fmt.Errorf("whisper: read fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return nil, 0, errors.New("whisper: fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			if format != 1 {
				return nil, 0, fmt.Errorf("whisper: unsupported WAV format %d, want PCM", format)
			}
			bits := binary.LittleEndian.Uint16(body[14:16])
			if bits != 16 {
				return nil, 0, fmt.Errorf("whisper: unsupported bit depth %d, want 16", bits)
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			rate = int(binary.LittleEndian.Uint32(body[4:8]))
		case "data":
			data = make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return nil, 0, fmt.Errorf("whisper: read data chunk: %w", err)
			}
		default:
			// Skip unknown chunks; sizes are padded to even byte counts.
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, 0, fmt.Errorf("whisper: skip %q chunk: %w", id, err)
			}
		}
	}

	if channels == 0 {
		return nil, 0, errors.New("whisper: missing fmt chunk")
	}
	if data == nil {
		return nil, 0, errors.New("whisper: missing data chunk")
	}
	return pcmToFloat32Mono(data, channels), rate, nil
}
