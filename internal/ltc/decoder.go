package ltc

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/satindergrewal/ltcd/internal/timecode"
)

const (
	// DefaultQueueSize is the number of completed frames the engine buffers
	// between drains.
	DefaultQueueSize = 32
	// DefaultSamplesPerFrame is used when the sample rate is unknown.
	DefaultSamplesPerFrame = 1920
)

// DecoderConfig holds the decoder's setup parameters.
type DecoderConfig struct {
	SampleRate float64
	FrameRate  timecode.FrameRateSpec
	QueueSize  int
	Logger     *slog.Logger
}

type DecoderStats struct {
	FramesDecoded uint64 `json:"frames_decoded"`
	Dropped       uint64 `json:"dropped"`
	Offset        int64  `json:"offset"`
}

// Decoder recovers timecode from an incoming LTC signal. Process runs on the
// audio thread and only hands decoded values to the Notifier; formatting and
// delivery happen on the notifier's goroutine.
type Decoder struct {
	log      *slog.Logger
	engine   DecoderEngine
	notifier *Notifier

	offset  atomic.Int64
	last    atomic.Uint64
	decoded atomic.Uint64
	closed  atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// NewDecoder creates the codec engine and binds the decoder to n.
func NewDecoder(factory Factory, n *Notifier, cfg DecoderConfig) (*Decoder, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = DefaultQueueSize
	}
	apv := samplesPerFrame(cfg.SampleRate, cfg.FrameRate.FPS)

	eng, err := factory.NewDecoder(apv, queue)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngine, err)
	}
	d := &Decoder{
		log:      logger.With("component", "ltc-decoder"),
		engine:   eng,
		notifier: n,
	}
	d.log.Debug("decoder ready", "samples_per_frame", apv, "queue", queue)
	return d, nil
}

func samplesPerFrame(sampleRate, fps float64) int {
	if sampleRate <= 0 || fps <= 0 {
		return DefaultSamplesPerFrame
	}
	return int(math.Round(sampleRate / fps))
}

// Process submits one block and drains every frame the engine completed.
// A block may complete zero, one, or several frames. The sample offset
// advances by len(in) on every call, including after Close.
func (d *Decoder) Process(in []float64) {
	off := d.offset.Load()
	if len(in) > 0 && !d.closed.Load() {
		d.engine.Write(in, off)
		var f Frame
		for d.engine.Read(&f) {
			d.last.Store(f.Timecode.Pack())
			d.decoded.Add(1)
			d.notifier.Post(Event{Timecode: f.Timecode, Offset: f.Start})
		}
	}
	d.offset.Add(int64(len(in)))
}

// Offset is the number of samples submitted so far.
func (d *Decoder) Offset() int64 { return d.offset.Load() }

// Last returns the most recently decoded value.
func (d *Decoder) Last() (timecode.Value, bool) {
	return timecode.Unpack(d.last.Load())
}

// SetFrameRateValue resolves v and applies it to readout formatting. Invalid
// values are logged once and replaced by the default rate.
func (d *Decoder) SetFrameRateValue(v timecode.ConfigValue) timecode.FrameRateSpec {
	spec, err := timecode.Resolve(v)
	if err != nil {
		d.log.Warn("invalid framerate, using default",
			"value", v.String(),
			"default", spec.Rate.String(),
			"error", err)
	}
	d.notifier.SetFrameRate(spec)
	return spec
}

// SetFormat selects the readout format by its 0–3 selector. Out-of-range
// selectors fall back to Raw with a warning.
func (d *Decoder) SetFormat(n int) timecode.OutputFormat {
	f, err := timecode.ParseOutputFormat(n)
	if err != nil {
		d.log.Warn("invalid output format, using raw", "value", n, "error", err)
	}
	d.notifier.SetFormat(f)
	return f
}

func (d *Decoder) Stats() DecoderStats {
	return DecoderStats{
		FramesDecoded: d.decoded.Load(),
		Dropped:       d.notifier.Dropped(),
		Offset:        d.offset.Load(),
	}
}

// Close releases the engine exactly once. The host must have stopped calling
// Process before Close runs.
func (d *Decoder) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		d.closeErr = d.engine.Close()
	})
	return d.closeErr
}
