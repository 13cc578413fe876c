// Package notify holds the readout sinks fed by the ltc notifier.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/satindergrewal/ltcd/internal/ltc"
)

// Payload is the serialized form of one readout.
type Payload struct {
	InstanceID string    `json:"instance_id" msgpack:"instance_id"`
	Timecode   string    `json:"timecode" msgpack:"timecode"`
	Direction  string    `json:"direction" msgpack:"direction"`
	Offset     int64     `json:"offset" msgpack:"offset"`
	FrameRate  string    `json:"framerate" msgpack:"framerate"`
	Format     string    `json:"format" msgpack:"format"`
	Value      []any     `json:"value" msgpack:"value"`
	Time       time.Time `json:"time" msgpack:"time"`
}

// NewPayload builds the payload for n.
func NewPayload(instanceID string, n ltc.Notification, at time.Time) Payload {
	return Payload{
		InstanceID: instanceID,
		Timecode:   n.Timecode.String(),
		Direction:  n.Timecode.Direction.String(),
		Offset:     n.Offset,
		FrameRate:  n.Spec.Rate.String(),
		Format:     n.Readout.Format.String(),
		Value:      n.Readout.Values(),
		Time:       at.UTC(),
	}
}

// LogSink writes every readout to a structured logger at debug level.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{log: logger.With("component", "readout")}
}

func (s *LogSink) Deliver(ctx context.Context, n ltc.Notification) error {
	s.log.LogAttrs(ctx, slog.LevelDebug, "timecode",
		slog.String("tc", n.Timecode.String()),
		slog.String("readout", n.Readout.String()),
		slog.Int64("offset", n.Offset))
	return nil
}

// Latest keeps the most recent readout for the status API.
type Latest struct {
	mu    sync.RWMutex
	last  ltc.Notification
	ok    bool
	count uint64
}

func (l *Latest) Deliver(_ context.Context, n ltc.Notification) error {
	l.mu.Lock()
	l.last, l.ok = n, true
	l.count++
	l.mu.Unlock()
	return nil
}

// Get returns the latest readout and how many have been seen.
func (l *Latest) Get() (n ltc.Notification, count uint64, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last, l.count, l.ok
}
