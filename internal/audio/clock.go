package audio

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// Source renders one block of signal, optionally with a parallel block of
// sync positions in milliseconds.
type Source interface {
	Process(out, syncOut []float64)
}

// Clock drives a Source at real-time rate and outputs stereo PCM blocks.
// It is the audio thread for the source: Process is only ever called from
// Run.
type Clock struct {
	log     *slog.Logger
	src     Source
	format  Format
	ramp    *Ramp
	frameCh chan []int16

	blocks   atomic.Uint64
	position atomic.Uint64 // float64 bits, ms
}

// NewClock creates a clock for src. ramp may be nil for unity gain.
func NewClock(src Source, f Format, ramp *Ramp, logger *slog.Logger) *Clock {
	if logger == nil {
		logger = slog.Default()
	}
	return &Clock{
		log:     logger.With("component", "clock"),
		src:     src,
		format:  f,
		ramp:    ramp,
		frameCh: make(chan []int16, 100),
	}
}

// Frames returns the channel of outgoing PCM blocks.
func (c *Clock) Frames() <-chan []int16 {
	return c.frameCh
}

// Status returns the number of blocks rendered and the sync position of the
// last rendered sample.
func (c *Clock) Status() (blocks uint64, position time.Duration) {
	ms := math.Float64frombits(c.position.Load())
	return c.blocks.Load(), time.Duration(ms * float64(time.Millisecond))
}

// Run renders one block per tick. Blocks until ctx is cancelled.
func (c *Clock) Run(ctx context.Context) {
	defer close(c.frameCh)

	ticker := time.NewTicker(c.format.BlockDuration())
	defer ticker.Stop()

	mono := make([]float64, c.format.BlockSize)
	syncOut := make([]float64, c.format.BlockSize)

	c.log.Info("clock started",
		"sample_rate", c.format.SampleRate,
		"block_size", c.format.BlockSize,
		"block_duration", c.format.BlockDuration())
	defer c.log.Info("clock stopped", "blocks", c.blocks.Load())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.src.Process(mono, syncOut)
		if c.ramp != nil {
			c.ramp.Apply(mono)
		}
		frame := make([]int16, c.format.BlockSamples())
		Interleave(frame, mono)

		c.blocks.Add(1)
		if n := len(syncOut); n > 0 {
			c.position.Store(math.Float64bits(syncOut[n-1]))
		}

		select {
		case c.frameCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// Play hands samples to fn one block at a time at real-time rate, starting
// over at the end when loop is set. The final block may be short. It returns
// when the samples run out or ctx is cancelled.
func Play(ctx context.Context, samples []float64, f Format, loop bool, fn func(block []float64)) {
	if len(samples) == 0 || f.BlockSize <= 0 {
		return
	}
	ticker := time.NewTicker(f.BlockDuration())
	defer ticker.Stop()

	pos := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}

		end := min(pos+f.BlockSize, len(samples))
		fn(samples[pos:end])
		pos = end
		if pos == len(samples) {
			if !loop {
				return
			}
			pos = 0
		}
	}
}
