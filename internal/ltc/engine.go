// Package ltc runs the real-time LTC codec pipelines. The Encoder turns an
// advancing timecode into one audio sample per call slot; the Decoder feeds
// incoming audio to a codec engine and hands completed frames to a Notifier
// that formats and delivers them off the audio thread.
//
// The biphase-mark mathematics live behind the Factory interface; see
// internal/libltc for the cgo binding used in production.
package ltc

import "github.com/satindergrewal/ltcd/internal/timecode"

// EncoderEngine is one codec engine instance configured for encoding.
// Implementations need not be safe for concurrent use; the Encoder
// serializes access with its Guard.
type EncoderEngine interface {
	// BufferSize is the largest number of samples one encoded frame produces.
	BufferSize() int
	SetDropFrame(on bool)
	SetTimecode(v timecode.Value)
	Timecode() timecode.Value
	// IncrementTimecode advances the engine's timecode by exactly one frame.
	IncrementTimecode()
	// EncodeFrame renders the current timecode into the engine's buffer.
	EncodeFrame()
	// CopyBuffer moves the encoded unsigned 8-bit samples into dst and
	// returns how many were written. dst is at least BufferSize long.
	CopyBuffer(dst []byte) int
	Close() error
}

// Frame is one completed frame read from a decoding engine.
type Frame struct {
	Timecode timecode.Value
	// Start and End are the sample offsets the engine attributed to the frame.
	Start int64
	End   int64
}

// DecoderEngine is one codec engine instance configured for decoding.
type DecoderEngine interface {
	// Write pushes a block of samples in [-1, 1]; offset is the sample
	// position of samples[0] on the running timeline.
	Write(samples []float64, offset int64)
	// Read pops the next completed frame. It never blocks.
	Read(f *Frame) bool
	Close() error
}

// Factory creates codec engines. A single Factory is built at startup and
// shared by every pipeline.
type Factory interface {
	NewEncoder(sampleRate float64, spec timecode.FrameRateSpec) (EncoderEngine, error)
	NewDecoder(samplesPerFrame, queueSize int) (DecoderEngine, error)
}
