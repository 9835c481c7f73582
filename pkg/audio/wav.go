// Package audio provides the small amount of PCM and WAV handling the relay
// needs: parsing WAV containers produced by speech engines, resampling 16-bit
// PCM and wrapping PCM into the 16 kHz mono WAV the client plays.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Output format expected by the embedded client's I2S DAC.
const (
	SampleRate16kHz = 16000
	SampleRate24kHz = 24000

	OutputSampleRate = SampleRate16kHz
	OutputChannels   = 1
	OutputBitDepth   = 16
)

const (
	wavHeaderSize  = 44
	formatPCM      = 1
	bytesPerSample = 2
)

// Errors returned by ParseWAV.
var (
	ErrNotWAV            = errors.New("not a RIFF/WAVE stream")
	ErrUnsupportedFormat = errors.New("unsupported WAV encoding")
	ErrMissingChunk      = errors.New("missing fmt or data chunk")
)

// WAV is a decoded PCM WAV stream.
type WAV struct {
	SampleRate int
	Channels   int
	BitDepth   int
	// Data holds little-endian interleaved samples.
	Data []byte
}

// IsWAV reports whether b starts with the RIFF magic bytes.
func IsWAV(b []byte) bool {
	return len(b) >= 4 && string(b[:4]) == "RIFF"
}

// ParseWAV decodes a 16-bit PCM WAV container. Unknown chunks are skipped.
// Streams written to a pipe often carry 0xFFFFFFFF or 0 as data size; in that
// case everything after the data chunk header is taken as samples.
func ParseWAV(b []byte) (*WAV, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	var (
		w      WAV
		hasFmt bool
	)
	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if body+16 > len(b) {
				return nil, ErrMissingChunk
			}
			if f := binary.LittleEndian.Uint16(b[body:]); f != formatPCM {
				return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedFormat, f)
			}
			w.Channels = int(binary.LittleEndian.Uint16(b[body+2:]))
			w.SampleRate = int(binary.LittleEndian.Uint32(b[body+4:]))
			w.BitDepth = int(binary.LittleEndian.Uint16(b[body+14:]))
			hasFmt = true
		case "data":
			if !hasFmt {
				return nil, ErrMissingChunk
			}
			end := body + size
			if size <= 0 || end > len(b) || end < body {
				end = len(b)
			}
			w.Data = b[body:end]
			if w.BitDepth != OutputBitDepth {
				return nil, fmt.Errorf("%w: %d-bit samples", ErrUnsupportedFormat, w.BitDepth)
			}
			if w.Channels <= 0 {
				return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, w.Channels)
			}
			return &w, nil
		}

		pos = body + size
		if size%2 == 1 {
			pos++
		}
		if size < 0 || pos < body {
			break
		}
	}
	return nil, ErrMissingChunk
}

// EncodeWAV wraps little-endian PCM samples in a canonical 44-byte header.
func EncodeWAV(pcm []byte, sampleRate, channels, bitDepth int) []byte {
	dataSize := len(pcm)
	byteRate := sampleRate * channels * bitDepth / 8
	blockAlign := channels * bitDepth / 8

	out := make([]byte, wavHeaderSize+dataSize)
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], formatPCM)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(bitDepth))

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))
	copy(out[44:], pcm)
	return out
}

// ToOutput converts a decoded WAV to the client format: mono, 16 kHz, 16-bit.
func ToOutput(w *WAV) ([]byte, error) {
	pcm := w.Data
	if w.Channels > 1 {
		pcm = DownmixPCM16(pcm, w.Channels)
	}
	resampled, err := ResamplePCM16(pcm, w.SampleRate, OutputSampleRate)
	if err != nil {
		return nil, err
	}
	return EncodeWAV(resampled, OutputSampleRate, OutputChannels, OutputBitDepth), nil
}

// PCM16ToOutput resamples raw mono PCM16 at rate and wraps it for the client.
func PCM16ToOutput(pcm []byte, rate int) ([]byte, error) {
	resampled, err := ResamplePCM16(pcm, rate, OutputSampleRate)
	if err != nil {
		return nil, err
	}
	return EncodeWAV(resampled, OutputSampleRate, OutputChannels, OutputBitDepth), nil
}
