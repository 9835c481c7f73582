package audio

import (
	"encoding/binary"
	"fmt"
)

// ResamplePCM16 resamples little-endian mono PCM16 from one rate to another
// using linear interpolation.
func ResamplePCM16(input []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: from=%d, to=%d", fromRate, toRate)
	}
	if len(input)%bytesPerSample != 0 {
		return nil, fmt.Errorf("input length %d is not a multiple of %d bytes per sample", len(input), bytesPerSample)
	}
	if fromRate == toRate {
		out := make([]byte, len(input))
		copy(out, input)
		return out, nil
	}

	in := decodeSamples(input)
	if len(in) == 0 {
		return []byte{}, nil
	}

	n := int(float64(len(in)) * float64(toRate) / float64(fromRate))
	out := make([]int16, n)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		src := float64(i) * ratio
		idx := int(src)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := src - float64(idx)
		s0, s1 := float64(in[idx]), float64(in[idx+1])
		out[i] = int16(s0 + frac*(s1-s0))
	}
	return encodeSamples(out), nil
}

// DownmixPCM16 averages interleaved channels into a single channel. Trailing
// partial frames are dropped.
func DownmixPCM16(input []byte, channels int) []byte {
	if channels <= 1 {
		return input
	}
	in := decodeSamples(input)
	frames := len(in) / channels
	out := make([]int16, frames)
	for f := 0; f < frames; f++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(in[f*channels+c])
		}
		out[f] = int16(sum / channels)
	}
	return encodeSamples(out)
}

func decodeSamples(b []byte) []int16 {
	s := make([]int16, len(b)/bytesPerSample)
	for i := range s {
		s[i] = int16(binary.LittleEndian.Uint16(b[i*bytesPerSample:])) //nolint:gosec // PCM16 reinterpretation
	}
	return s
}

func encodeSamples(s []int16) []byte {
	b := make([]byte, len(s)*bytesPerSample)
	for i, v := range s {
		binary.LittleEndian.PutUint16(b[i*bytesPerSample:], uint16(v)) //nolint:gosec // PCM16 reinterpretation
	}
	return b
}
