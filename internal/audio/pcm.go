package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strconv"
)

// DecodeFile runs FFmpeg to decode a media file to mono float64 samples at
// sampleRate. Used to feed a recorded LTC track to the decoder.
func DecodeFile(ctx context.Context, path string, sampleRate int) ([]float64, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", path,
		"-f", "f64le",
		"-acodec", "pcm_f64le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}
	return BytesToFloats(out), nil
}

// BytesToFloats reads little-endian float64 samples, ignoring a trailing
// partial sample.
func BytesToFloats(b []byte) []float64 {
	samples := make([]float64, len(b)/8)
	for i := range samples {
		samples[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return samples
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// toInt16 converts one sample in [-1, 1] with clipping.
func toInt16(s float64) int16 {
	v := math.Round(s * 32767)
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// Interleave writes mono into every channel of the stereo block dst.
// dst must hold len(mono)*Channels samples.
func Interleave(dst []int16, mono []float64) {
	for i, s := range mono {
		v := toInt16(s)
		for c := range Channels {
			dst[i*Channels+c] = v
		}
	}
}

// Deinterleave extracts channel ch of an interleaved block into dst as
// floats in [-1, 1]. It returns the number of samples written.
func Deinterleave(dst []float64, block []int16, ch int) int {
	n := min(len(dst), len(block)/Channels)
	for i := range n {
		dst[i] = float64(block[i*Channels+ch]) / 32768
	}
	return n
}
