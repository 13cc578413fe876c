package ltc

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/satindergrewal/ltcd/internal/timecode"
)

// DefaultStart is the timecode seeded into the engine on every refresh unless
// the encoder has been located elsewhere.
var DefaultStart = timecode.Value{Hours: 1}

// EncoderConfig holds the initial encoder settings.
type EncoderConfig struct {
	FrameRate timecode.FrameRateSpec
	// Start overrides DefaultStart when non-nil.
	Start  *timecode.Value
	Logger *slog.Logger
}

// EncoderStats are counters maintained by the audio thread.
type EncoderStats struct {
	FramesEncoded  uint64 `json:"frames_encoded"`
	Refreshes      uint64 `json:"refreshes"`
	RefreshRetries uint64 `json:"refresh_retries"`
	Contended      uint64 `json:"contended"`
	SilentSamples  uint64 `json:"silent_samples"`
}

// generation is one engine with the buffer sized for it. Generations are
// built on the control thread and installed whole by the audio thread, so a
// reader never sees a partially replaced buffer.
type generation struct {
	engine  EncoderEngine
	buf     []byte
	length  int
	spec    timecode.FrameRateSpec
	frameMs float64

	retiredNext *generation
}

// Encoder emits an LTC signal for an advancing timecode.
//
// Process runs on the audio thread; every other method runs on the control
// thread. Reconfiguration builds a new engine and buffer off the audio thread
// and raises the refresh flag; the audio thread swaps it in at the start of
// the next block if it can take the guard, and keeps playing the stale buffer
// otherwise.
type Encoder struct {
	log     *slog.Logger
	factory Factory
	guard   Guard

	mu         sync.Mutex
	sampleRate float64
	spec       timecode.FrameRateSpec
	start      timecode.Value
	closed     bool
	err        error

	pending atomic.Pointer[generation]
	retired atomic.Pointer[generation]
	refresh atomic.Bool
	halted  atomic.Bool

	// Guarded by guard.
	cur *generation

	// Audio thread only.
	buf     []byte
	length  int
	pos     int
	frameMs float64

	framesEncoded atomic.Uint64
	refreshes     atomic.Uint64
	refreshMisses atomic.Uint64
	silent        atomic.Uint64
}

// NewEncoder returns an uninitialized encoder. No engine exists until Prepare
// supplies a sample rate.
func NewEncoder(factory Factory, cfg EncoderConfig) *Encoder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := DefaultStart
	if cfg.Start != nil {
		start = *cfg.Start
	}
	return &Encoder{
		log:     logger.With("component", "ltc-encoder"),
		factory: factory,
		spec:    cfg.FrameRate,
		start:   start,
	}
}

// Prepare sets the sample rate and builds the engine for it. An error here is
// fatal to the encoder.
func (e *Encoder) Prepare(sampleRate float64) error {
	if sampleRate <= 0 {
		return fmt.Errorf("ltc: invalid sample rate %v", sampleRate)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sampleRate = sampleRate
	return e.rebuildLocked()
}

// SetFrameRate switches to spec at the start of a later block.
func (e *Encoder) SetFrameRate(spec timecode.FrameRateSpec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spec = spec
	return e.rebuildLocked()
}

// SetFrameRateValue resolves a loosely typed setting. Unrecognized values are
// logged once and replaced by the default rate; the returned error is only
// ever an engine failure.
func (e *Encoder) SetFrameRateValue(v timecode.ConfigValue) (timecode.FrameRateSpec, error) {
	spec, err := timecode.Resolve(v)
	if err != nil {
		e.log.Warn("invalid framerate, using default",
			"value", v.String(),
			"default", spec.Rate.String(),
			"error", err)
	}
	return spec, e.SetFrameRate(spec)
}

// Locate restarts the running timecode at v.
func (e *Encoder) Locate(v timecode.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := v.Validate(e.spec); err != nil {
		return err
	}
	e.start = v
	return e.rebuildLocked()
}

// FrameRate returns the configured spec.
func (e *Encoder) FrameRate() timecode.FrameRateSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spec
}

// Err returns the fatal setup error, if any.
func (e *Encoder) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Timecode reads the engine's current timecode. It blocks on the guard.
func (e *Encoder) Timecode() (timecode.Value, error) {
	e.guard.Acquire()
	defer e.guard.Release()
	if e.cur == nil {
		return timecode.Value{}, ErrNotPrepared
	}
	return e.cur.engine.Timecode(), nil
}

func (e *Encoder) Stats() EncoderStats {
	return EncoderStats{
		FramesEncoded:  e.framesEncoded.Load(),
		Refreshes:      e.refreshes.Load(),
		RefreshRetries: e.refreshMisses.Load(),
		Contended:      e.guard.Contended(),
		SilentSamples:  e.silent.Load(),
	}
}

// Close releases every engine the encoder owns. It takes the guard, so it
// never races a refill or refresh on the audio thread.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.halted.Store(true)

	var errs []error
	e.guard.Acquire()
	if e.cur != nil {
		errs = append(errs, e.cur.engine.Close())
		e.cur = nil
	}
	if g := e.pending.Swap(nil); g != nil {
		errs = append(errs, g.engine.Close())
	}
	e.guard.Release()
	errs = append(errs, e.releaseRetired())
	return errors.Join(errs...)
}

func (e *Encoder) rebuildLocked() error {
	if e.closed {
		return ErrClosed
	}
	if e.err != nil {
		return e.err
	}
	if e.sampleRate <= 0 {
		return nil
	}
	if err := e.releaseRetired(); err != nil {
		e.log.Warn("release retired engine", "error", err)
	}

	gen, err := e.newGeneration()
	if err != nil {
		e.err = err
		e.halted.Store(true)
		e.log.Error("encoder setup failed",
			"sample_rate", e.sampleRate,
			"framerate", e.spec.Rate.String(),
			"error", err)
		return err
	}
	if stale := e.pending.Swap(gen); stale != nil {
		if err := stale.engine.Close(); err != nil {
			e.log.Warn("release unused engine", "error", err)
		}
	}
	e.refresh.Store(true)
	e.log.Debug("encoder refresh pending",
		"sample_rate", e.sampleRate,
		"framerate", e.spec.String(),
		"start", e.start.String(),
		"buffer", len(gen.buf))
	return nil
}

func (e *Encoder) newGeneration() (*generation, error) {
	eng, err := e.factory.NewEncoder(e.sampleRate, e.spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngine, err)
	}
	size := eng.BufferSize()
	if size <= 0 {
		eng.Close()
		return nil, fmt.Errorf("%w: buffer size %d", ErrEngine, size)
	}
	eng.SetDropFrame(e.spec.DropFrame)
	eng.SetTimecode(e.start)
	eng.EncodeFrame()

	buf := make([]byte, size)
	n := min(max(eng.CopyBuffer(buf), 0), size)
	return &generation{
		engine:  eng,
		buf:     buf,
		length:  n,
		spec:    e.spec,
		frameMs: frameMilliseconds(e.start, e.spec),
	}, nil
}

// releaseRetired closes the engines the audio thread swapped out.
func (e *Encoder) releaseRetired() error {
	var errs []error
	for g := e.retired.Swap(nil); g != nil; g = g.retiredNext {
		errs = append(errs, g.engine.Close())
	}
	return errors.Join(errs...)
}

// Process fills out with one LTC sample per slot. When syncOut is non-nil it
// receives the millisecond position of the frame being emitted. Audio thread
// only: it never blocks and never allocates.
func (e *Encoder) Process(out, syncOut []float64) {
	if e.halted.Load() {
		clear(out)
		clear(syncOut)
		return
	}
	if e.refresh.Load() {
		e.applyRefresh()
	}

	for i := range out {
		if e.pos >= e.length && !e.refill() {
			// Contended or not yet prepared: one neutral sample, retry on the next.
			out[i] = 0
			e.silent.Add(1)
		} else {
			out[i] = float64(e.buf[e.pos])/127.5 - 1
			e.pos++
		}
		if i < len(syncOut) {
			syncOut[i] = e.frameMs
		}
	}
}

func (e *Encoder) applyRefresh() {
	if !e.guard.TryAcquire() {
		e.refreshMisses.Add(1)
		return
	}
	defer e.guard.Release()

	e.refresh.Store(false)
	gen := e.pending.Swap(nil)
	if gen == nil {
		return
	}
	if old := e.cur; old != nil {
		e.retire(old)
	}
	e.cur = gen
	e.buf, e.length, e.pos = gen.buf, gen.length, 0
	e.frameMs = gen.frameMs
	e.refreshes.Add(1)
}

// retire hands g to the control thread for release.
func (e *Encoder) retire(g *generation) {
	for {
		head := e.retired.Load()
		g.retiredNext = head
		if e.retired.CompareAndSwap(head, g) {
			return
		}
	}
}

// refill encodes the next frame into the buffer. It reports false when the
// guard is contended or no engine is installed.
func (e *Encoder) refill() bool {
	if !e.guard.TryAcquire() {
		return false
	}
	defer e.guard.Release()

	g := e.cur
	if g == nil {
		return false
	}
	g.engine.IncrementTimecode()
	g.engine.EncodeFrame()
	n := min(max(g.engine.CopyBuffer(e.buf), 0), len(e.buf))
	e.length, e.pos = n, 0
	e.frameMs = frameMilliseconds(g.engine.Timecode(), g.spec)
	e.framesEncoded.Add(1)
	return n > 0
}

func frameMilliseconds(v timecode.Value, spec timecode.FrameRateSpec) float64 {
	return float64(timecode.FrameCountToMilliseconds(timecode.FrameCount(v, spec.DropFrame), spec.FPS))
}
