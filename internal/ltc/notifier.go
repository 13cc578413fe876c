package ltc

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/satindergrewal/ltcd/internal/timecode"
)

// Event is a decoded frame as posted from the audio thread.
type Event struct {
	Timecode timecode.Value
	// Offset is the sample offset at which the frame started.
	Offset int64
}

// Notification is an Event formatted for delivery.
type Notification struct {
	Event
	Spec    timecode.FrameRateSpec
	Readout timecode.Readout
}

// Sink receives notifications on the notifier goroutine.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Deliver(ctx context.Context, n Notification) error { return f(ctx, n) }

// Notifier is the bounded hand-off between the decoder on the audio thread
// and the sinks. Post never blocks: when the queue is full the newest event
// is dropped and counted.
type Notifier struct {
	log *slog.Logger
	ch  chan Event

	spec   atomic.Pointer[timecode.FrameRateSpec]
	format atomic.Int32

	mu    sync.RWMutex
	sinks []Sink

	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// NewNotifier creates a notifier with room for depth pending events.
func NewNotifier(depth int, spec timecode.FrameRateSpec, format timecode.OutputFormat, logger *slog.Logger) *Notifier {
	if depth <= 0 {
		depth = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		log: logger.With("component", "ltc-notifier"),
		ch:  make(chan Event, depth),
	}
	n.SetFrameRate(spec)
	n.SetFormat(format)
	return n
}

// AddSink registers s. Sinks are called in registration order.
func (n *Notifier) AddSink(s Sink) {
	n.mu.Lock()
	n.sinks = append(n.sinks, s)
	n.mu.Unlock()
}

func (n *Notifier) SetFrameRate(spec timecode.FrameRateSpec) {
	n.spec.Store(&spec)
}

func (n *Notifier) FrameRate() timecode.FrameRateSpec {
	return *n.spec.Load()
}

func (n *Notifier) SetFormat(f timecode.OutputFormat) {
	n.format.Store(int32(f))
}

func (n *Notifier) Format() timecode.OutputFormat {
	return timecode.OutputFormat(n.format.Load())
}

// Post queues ev without blocking and reports whether it was accepted.
func (n *Notifier) Post(ev Event) bool {
	select {
	case n.ch <- ev:
		return true
	default:
		n.dropped.Add(1)
		return false
	}
}

func (n *Notifier) Dropped() uint64   { return n.dropped.Load() }
func (n *Notifier) Delivered() uint64 { return n.delivered.Load() }

// Run formats and delivers queued events until ctx is cancelled. Only one Run
// may be active at a time.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-n.ch:
			n.deliver(ctx, ev)
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, ev Event) {
	spec := n.FrameRate()
	note := Notification{
		Event:   ev,
		Spec:    spec,
		Readout: timecode.Format(ev.Timecode, spec, n.Format()),
	}

	n.mu.RLock()
	sinks := n.sinks
	n.mu.RUnlock()

	for _, s := range sinks {
		if err := s.Deliver(ctx, note); err != nil {
			n.log.Warn("sink delivery failed", "timecode", ev.Timecode.String(), "error", err)
		}
	}
	n.delivered.Add(1)
}
