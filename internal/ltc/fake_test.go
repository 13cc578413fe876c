package ltc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/satindergrewal/ltcd/internal/timecode"
)

// fakeEncoderEngine fills its buffer with one byte per frame derived from the
// encoded frame count, or with pattern when set.
type fakeEncoderEngine struct {
	size    int
	pattern []byte
	spec    timecode.FrameRateSpec

	dropFrame bool
	tc        timecode.Value
	encoded   timecode.Value
	encodes   int
	closes    atomic.Int32
}

func (f *fakeEncoderEngine) BufferSize() int              { return f.size }
func (f *fakeEncoderEngine) SetDropFrame(df bool)         { f.dropFrame = df }
func (f *fakeEncoderEngine) SetTimecode(v timecode.Value) { f.tc = v }
func (f *fakeEncoderEngine) Timecode() timecode.Value     { return f.tc }

func (f *fakeEncoderEngine) IncrementTimecode() {
	f.tc = advance(f.tc, f.spec)
}

func (f *fakeEncoderEngine) EncodeFrame() {
	f.encoded = f.tc
	f.encodes++
}

func (f *fakeEncoderEngine) CopyBuffer(dst []byte) int {
	if f.pattern != nil {
		return copy(dst, f.pattern)
	}
	n := min(len(dst), f.size)
	lvl := levelFor(f.encoded, f.dropFrame)
	for i := range n {
		dst[i] = lvl
	}
	return n
}

func (f *fakeEncoderEngine) Close() error {
	f.closes.Add(1)
	return nil
}

// advance steps v by one frame at the spec's nominal rate, skipping dropped
// frame numbers.
func advance(v timecode.Value, spec timecode.FrameRateSpec) timecode.Value {
	v.Frames++
	if v.Frames >= spec.NominalFPS() {
		v.Frames = 0
		v.Seconds++
	}
	if v.Seconds >= 60 {
		v.Seconds = 0
		v.Minutes++
	}
	if v.Minutes >= 60 {
		v.Minutes = 0
		v.Hours = (v.Hours + 1) % 24
	}
	if spec.DropFrame && v.Seconds == 0 && v.Frames == 0 && v.Minutes%10 != 0 {
		v.Frames = 2
	}
	return v
}

// levelFor is the byte the fake engine emits for frame v.
func levelFor(v timecode.Value, dropFrame bool) byte {
	return byte(timecode.FrameCount(v, dropFrame) % 251)
}

// sampleFor is the encoder output for the fake engine's frame v.
func sampleFor(v timecode.Value, dropFrame bool) float64 {
	return float64(levelFor(v, dropFrame))/127.5 - 1
}

// fakeDecoderEngine reports one frame every apv samples written.
type fakeDecoderEngine struct {
	apv       int
	dropFrame bool

	written int64
	offsets []int64
	queue   []Frame
	closes  atomic.Int32
}

func (f *fakeDecoderEngine) Write(samples []float64, offset int64) {
	f.offsets = append(f.offsets, offset)
	apv := int64(f.apv)
	for i := range samples {
		pos := f.written + int64(i)
		if (pos+1)%apv == 0 {
			k := pos / apv
			f.queue = append(f.queue, Frame{
				Timecode: timecode.FromFrameCount(k, f.dropFrame),
				Start:    k * apv,
				End:      pos,
			})
		}
	}
	f.written += int64(len(samples))
}

func (f *fakeDecoderEngine) Read(fr *Frame) bool {
	if len(f.queue) == 0 {
		return false
	}
	*fr = f.queue[0]
	f.queue = f.queue[1:]
	return true
}

func (f *fakeDecoderEngine) Close() error {
	f.closes.Add(1)
	return nil
}

var errFakeEngine = errors.New("fake engine unavailable")

type fakeFactory struct {
	bufSize int
	pattern []byte
	fail    bool

	mu        sync.Mutex
	encoders  []*fakeEncoderEngine
	decoders  []*fakeDecoderEngine
	apvs      []int
	queueSize int
}

func newFakeFactory(bufSize int) *fakeFactory {
	return &fakeFactory{bufSize: bufSize}
}

func (f *fakeFactory) NewEncoder(sampleRate float64, spec timecode.FrameRateSpec) (EncoderEngine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errFakeEngine
	}
	eng := &fakeEncoderEngine{size: f.bufSize, pattern: f.pattern, spec: spec}
	f.encoders = append(f.encoders, eng)
	return eng, nil
}

func (f *fakeFactory) NewDecoder(samplesPerFrame, queueSize int) (DecoderEngine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errFakeEngine
	}
	eng := &fakeDecoderEngine{apv: samplesPerFrame}
	f.decoders = append(f.decoders, eng)
	f.apvs = append(f.apvs, samplesPerFrame)
	f.queueSize = queueSize
	return eng, nil
}

func (f *fakeFactory) encoderEngines() []*fakeEncoderEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeEncoderEngine(nil), f.encoders...)
}

// countingHandler counts records per level.
type countingHandler struct {
	mu     sync.Mutex
	counts map[slog.Level]int
}

func newCountingLogger() (*slog.Logger, *countingHandler) {
	h := &countingHandler{counts: make(map[slog.Level]int)}
	return slog.New(h), h
}

func (h *countingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *countingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.counts[r.Level]++
	h.mu.Unlock()
	return nil
}

func (h *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countingHandler) WithGroup(string) slog.Handler      { return h }

func (h *countingHandler) count(l slog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[l]
}
