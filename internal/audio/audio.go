package audio

import "time"

const (
	DefaultSampleRate = 48000
	DefaultBlockSize  = 960 // samples per channel per 20ms block at 48kHz
	Channels          = 2
	BitDepth          = 16
)

// Format describes the PCM blocks moving through the service.
type Format struct {
	SampleRate int
	BlockSize  int // samples per channel per block
}

// DefaultFormat is 48kHz stereo in 20ms blocks.
var DefaultFormat = Format{SampleRate: DefaultSampleRate, BlockSize: DefaultBlockSize}

// BlockDuration is the wall-clock length of one block.
func (f Format) BlockDuration() time.Duration {
	return time.Duration(f.BlockSize) * time.Second / time.Duration(f.SampleRate)
}

// BlockSamples is the number of interleaved samples in one block.
func (f Format) BlockSamples() int { return f.BlockSize * Channels }

// BlockBytes is the size of one block as s16le.
func (f Format) BlockBytes() int { return f.BlockSamples() * BitDepth / 8 }
