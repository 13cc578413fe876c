package main

import (
	"context"
	"log/slog"

	"github.com/satindergrewal/ltcd/internal/audio"
	"github.com/satindergrewal/ltcd/internal/ltc"
	"github.com/satindergrewal/ltcd/internal/stream"
)

// loopbackBuffer is how many blocks the loopback decoder may fall behind the
// clock before blocks are dropped for it.
const loopbackBuffer = 50

// decodeInput feeds one goroutine's worth of audio into the decoder. That
// goroutine is the decoder's audio thread.
type decodeInput struct {
	log    *slog.Logger
	dec    *ltc.Decoder
	format audio.Format
}

// loopback decodes the left channel of the clock's own output.
func (in decodeInput) loopback(ctx context.Context, bc *stream.Broadcaster) {
	l := bc.SubscribeBuffered(loopbackBuffer)
	defer bc.Unsubscribe(l)

	in.log.Info("decoding loopback signal")
	mono := make([]float64, in.format.BlockSize)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.Done():
			return
		case frame, ok := <-l.C:
			if !ok {
				return
			}
			n := audio.Deinterleave(mono, frame, 0)
			in.dec.Process(mono[:n])
		}
	}
}

// file decodes a recorded LTC track at real-time rate, looping at the end.
func (in decodeInput) file(ctx context.Context, path string) error {
	samples, err := audio.DecodeFile(ctx, path, in.format.SampleRate)
	if err != nil {
		return err
	}
	in.log.Info("decoding file", "path", path, "samples", len(samples))
	audio.Play(ctx, samples, in.format, true, in.dec.Process)
	return nil
}
